// Package sheets reconciles balances and monthly category totals into a Google
// Sheets workbook without ever touching formula-owned cells.
package sheets

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/autobudgeter/internal/common"
)

// Config describes the target workbook and how to authenticate to it.
type Config struct {
	ClientID            string
	ClientSecret        string
	RefreshToken        string
	ServiceAccountPath  string
	SpreadsheetID       string
	RunningBalanceSheet string
	BankCell            string
	CC1Cell             string
	CC2Cell             string
	MonthlyTabTemplate  string
	MonthlyReadRange    string
	DerivedLabel        string
	ReservedCells       []string
	RetryAttempts       int
	RetryDelay          time.Duration
}

// DefaultConfig returns the layout of the standard budget workbook.
func DefaultConfig() Config {
	return Config{
		RunningBalanceSheet: "Running Balance",
		BankCell:            "B2",
		CC1Cell:             "D2",
		CC2Cell:             "D4",
		ReservedCells:       []string{"D3"},
		MonthlyTabTemplate:  "{Month} {Year}",
		MonthlyReadRange:    "A1:B50",
		DerivedLabel:        "SUM",
		RetryAttempts:       3,
		RetryDelay:          time.Second,
	}
}

// LoadFromEnv fills credentials and the spreadsheet id from the environment.
func (c *Config) LoadFromEnv() {
	setIfEmpty(&c.ClientID, os.Getenv("GOOGLE_SHEETS_CLIENT_ID"))
	setIfEmpty(&c.ClientSecret, os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET"))
	setIfEmpty(&c.RefreshToken, os.Getenv("GOOGLE_SHEETS_REFRESH_TOKEN"))
	setIfEmpty(&c.ServiceAccountPath, os.Getenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH"))
	setIfEmpty(&c.SpreadsheetID, os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID"))
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// ValidateLayout checks the workbook layout without requiring credentials.
func (c *Config) ValidateLayout() error {
	if strings.TrimSpace(c.SpreadsheetID) == "" {
		return common.NewConfigurationError("sheets.spreadsheet_id", nil)
	}
	if strings.TrimSpace(c.RunningBalanceSheet) == "" {
		return common.NewConfigurationError("sheets.running_balance_sheet", nil)
	}
	if strings.TrimSpace(c.DerivedLabel) == "" {
		return common.NewConfigurationError("sheets.derived_label", nil)
	}
	if !strings.Contains(c.MonthlyTabTemplate, "{") {
		return common.NewConfigurationError("sheets.monthly_tab_template",
			fmt.Errorf("%w: template %q has no placeholders", common.ErrInvalidConfig, c.MonthlyTabTemplate))
	}

	balanceCells := map[string]string{
		"sheets.cells.bank": c.BankCell,
		"sheets.cells.cc1":  c.CC1Cell,
		"sheets.cells.cc2":  c.CC2Cell,
	}
	for setting, cell := range balanceCells {
		if _, err := ParseRange(cell); err != nil {
			return common.NewConfigurationError(setting, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err))
		}
		for _, reserved := range c.ReservedCells {
			if strings.EqualFold(strings.TrimSpace(cell), strings.TrimSpace(reserved)) {
				return common.NewConfigurationError(setting,
					fmt.Errorf("%w: balance cell %s is reserved", common.ErrInvalidConfig, cell))
			}
		}
	}
	for _, reserved := range c.ReservedCells {
		if _, err := ParseRange(reserved); err != nil {
			return common.NewConfigurationError("sheets.reserved_cells", fmt.Errorf("%w: %v", common.ErrInvalidConfig, err))
		}
	}
	if _, err := ParseRange(c.MonthlyReadRange); err != nil {
		return common.NewConfigurationError("sheets.monthly_read_range", fmt.Errorf("%w: %v", common.ErrInvalidConfig, err))
	}
	return nil
}

// Validate checks the layout and that exactly one authentication method is set.
func (c *Config) Validate() error {
	if err := c.ValidateLayout(); err != nil {
		return err
	}

	hasOAuth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	hasServiceAccount := c.ServiceAccountPath != ""

	if !hasOAuth && !hasServiceAccount {
		return common.NewConfigurationError("sheets.auth",
			fmt.Errorf("%w: no authentication method configured", common.ErrMissingConfig))
	}
	if hasOAuth && hasServiceAccount {
		return common.NewConfigurationError("sheets.auth",
			fmt.Errorf("%w: multiple authentication methods configured; use either OAuth2 or service account", common.ErrInvalidConfig))
	}
	if c.RetryAttempts < 0 {
		return common.NewConfigurationError("sheets.retry_attempts",
			fmt.Errorf("%w: retry attempts cannot be negative", common.ErrInvalidConfig))
	}
	return nil
}
