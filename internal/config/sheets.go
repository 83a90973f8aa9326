package config

import (
	"github.com/spf13/viper"

	"github.com/Veraticus/autobudgeter/internal/sheets"
)

// LoadSheetsConfig loads Google Sheets configuration. Precedence:
// 1. Viper configuration (config file or AUTOBUDGET_SHEETS_* env vars)
// 2. Direct environment variables (GOOGLE_SHEETS_*)
// 3. Default workbook layout
//
// Validation is left to the caller because only pushes need a complete config.
func LoadSheetsConfig(v *viper.Viper) sheets.Config {
	config := sheets.DefaultConfig()

	if p := v.GetString("sheets.service_account_path"); p != "" {
		config.ServiceAccountPath = ExpandPath(p)
	}
	config.ClientID = v.GetString("sheets.client_id")
	config.ClientSecret = v.GetString("sheets.client_secret")
	config.RefreshToken = v.GetString("sheets.refresh_token")
	config.SpreadsheetID = v.GetString("sheets.spreadsheet_id")

	config.LoadFromEnv()
	config.ServiceAccountPath = ExpandPath(config.ServiceAccountPath)

	setString(v, "sheets.running_balance_sheet", &config.RunningBalanceSheet)
	setString(v, "sheets.cells.bank", &config.BankCell)
	setString(v, "sheets.cells.cc1", &config.CC1Cell)
	setString(v, "sheets.cells.cc2", &config.CC2Cell)
	setString(v, "sheets.monthly_tab_template", &config.MonthlyTabTemplate)
	setString(v, "sheets.monthly_read_range", &config.MonthlyReadRange)
	setString(v, "sheets.derived_label", &config.DerivedLabel)
	if v.IsSet("sheets.reserved_cells") {
		config.ReservedCells = v.GetStringSlice("sheets.reserved_cells")
	}
	if n := v.GetInt("sheets.retry_attempts"); n > 0 {
		config.RetryAttempts = n
	}
	if d := v.GetDuration("sheets.retry_delay"); d > 0 {
		config.RetryDelay = d
	}

	return config
}

func setString(v *viper.Viper, key string, dst *string) {
	if s := v.GetString(key); s != "" {
		*dst = s
	}
}
