package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/llm"
	"github.com/Veraticus/autobudgeter/internal/model"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"OPENROUTER_API_KEY", "OPENROUTER_MODEL", "GEMINI_API_KEY", "GEMINI_MODEL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
		"PLAID_CLIENT_ID", "PLAID_SECRET", "PLAID_ENV", "PLAID_ACCESS_TOKEN",
		"GOOGLE_SHEETS_CLIENT_ID", "GOOGLE_SHEETS_CLIENT_SECRET", "GOOGLE_SHEETS_REFRESH_TOKEN",
		"GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "GOOGLE_SHEETS_SPREADSHEET_ID",
		"SIMPLEFIN_TOKEN", "SIMPLEFIN_ACCESS_URL",
	} {
		t.Setenv(name, "")
	}
}

func newTestViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := Load(newTestViper(t, ""))
	require.NoError(t, err)

	s := cfg.Settings
	assert.Equal(t, "Asia/Kolkata", s.Location.String())
	assert.InDelta(t, 0.75, s.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "0 9 * * *", s.AutoSyncCron)
	assert.Equal(t, model.ExportNative, s.ExportDestination)
	assert.Equal(t, 90, s.LookbackDays)
	assert.Equal(t, 7, s.OverlapDays)
	assert.Equal(t, 4, s.Concurrency)
	assert.True(t, s.LLMEnabled)
	assert.False(t, s.AutoSyncEnabled)
	assert.Equal(t, llm.ProviderOpenRouter, s.LLMProvider)
	assert.Equal(t, SourcePlaid, s.Source)

	assert.Equal(t, model.DefaultBudgets, cfg.Budgets)
	assert.Equal(t, "Food", cfg.Categories()[1])
	assert.Empty(t, cfg.LLM, "providers without keys are left out")
	assert.Equal(t, "sandbox", cfg.Plaid.Environment)
	assert.Equal(t, 90, cfg.Plaid.LookbackDays)
	assert.Equal(t, filepath.Join(filepath.Dir(cfg.DatabasePath), "simplefin_auth.json"), cfg.SimpleFIN.StatePath)
	assert.Equal(t, "Running Balance", cfg.Sheets.RunningBalanceSheet)
	assert.Equal(t, 24*time.Hour, cfg.LLMCacheTTL)
	assert.Equal(t, "autobudget.audit", cfg.Audit.AMQPExchange)
	assert.True(t, strings.HasSuffix(cfg.DatabasePath, filepath.Join("autobudget", "autobudget.db")))
}

func TestLoad_FromFile(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := Load(newTestViper(t, `
settings:
  timezone: America/New_York
  confidence_threshold: 0.9
  export_destination: google_sheets
  auto_sync_enabled: true
  auto_push_to_sheets: true
  concurrency: 2
budgets:
  - name: Food
    monthly_budget: 450.50
  - name: Gas
    monthly_budget: 150
  - name: Misc
sheets:
  spreadsheet_id: sheet-123
  cells:
    bank: C2
  reserved_cells: [D3, E3]
llm:
  gemini:
    api_key: g-key
    model: gemini-2.0-flash
plaid:
  client_id: cid
  secret: sec
  environment: production
`))
	require.NoError(t, err)

	assert.Equal(t, "America/New_York", cfg.Settings.Location.String())
	assert.Equal(t, model.ExportGoogleSheets, cfg.Settings.ExportDestination)
	assert.True(t, cfg.Settings.AutoPushToSheets)
	assert.Equal(t, 2, cfg.Settings.Concurrency)

	require.Len(t, cfg.Budgets, 3)
	assert.True(t, decimal.RequireFromString("450.5").Equal(cfg.Budgets[0].MonthlyBudget))
	assert.True(t, cfg.Budgets[2].MonthlyBudget.IsZero())
	assert.Equal(t, []string{"Food", "Gas", "Misc"}, cfg.Categories())

	assert.Equal(t, "sheet-123", cfg.Sheets.SpreadsheetID)
	assert.Equal(t, "C2", cfg.Sheets.BankCell)
	assert.Equal(t, "D2", cfg.Sheets.CC1Cell)
	assert.Equal(t, []string{"D3", "E3"}, cfg.Sheets.ReservedCells)

	require.Len(t, cfg.LLM, 1)
	assert.Equal(t, llm.ProviderGemini, cfg.LLM[0].Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM[0].Model)
	assert.Equal(t, 30*time.Second, cfg.LLM[0].Timeout)

	assert.Equal(t, "production", cfg.Plaid.Environment)
	assert.Equal(t, "cid", cfg.Plaid.ClientID)
}

func TestLoad_EnvFallbacks(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("OPENROUTER_MODEL", "openai/gpt-4o-mini")
	t.Setenv("PLAID_CLIENT_ID", "env-client")
	t.Setenv("PLAID_ENV", "production")
	t.Setenv("GOOGLE_SHEETS_SPREADSHEET_ID", "env-sheet")
	t.Setenv("SIMPLEFIN_TOKEN", "sfin-token")

	cfg, err := Load(newTestViper(t, "plaid:\n  client_id: file-client\n"))
	require.NoError(t, err)

	require.Len(t, cfg.LLM, 1)
	assert.Equal(t, llm.ProviderOpenRouter, cfg.LLM[0].Provider)
	assert.Equal(t, "or-key", cfg.LLM[0].APIKey)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.LLM[0].Model)

	assert.Equal(t, "file-client", cfg.Plaid.ClientID, "config file wins over env")
	assert.Equal(t, "production", cfg.Plaid.Environment)
	assert.Equal(t, "env-sheet", cfg.Sheets.SpreadsheetID)
	assert.Equal(t, "sfin-token", cfg.SimpleFIN.Token)
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		setting string
	}{
		{name: "threshold above one", yaml: "settings:\n  confidence_threshold: 1.5\n", setting: "settings.confidence_threshold"},
		{name: "unknown source", yaml: "settings:\n  source: yodlee\n", setting: "settings.source"},
		{name: "unknown destination", yaml: "settings:\n  export_destination: dropbox\n", setting: "settings.export_destination"},
		{name: "unknown timezone", yaml: "settings:\n  timezone: Mars/Olympus\n", setting: "settings.timezone"},
		{name: "zero concurrency", yaml: "settings:\n  concurrency: 0\n", setting: "settings.concurrency"},
		{name: "zero lookback", yaml: "settings:\n  lookback_days: 0\n", setting: "settings.lookback_days"},
		{name: "auto sync without cron", yaml: "settings:\n  auto_sync_enabled: true\n  auto_sync_cron: \"\"\n", setting: "settings.auto_sync_cron"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSettings(newTestViper(t, tt.yaml))
			require.Error(t, err)

			var cfgErr *common.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.setting, cfgErr.Setting)
		})
	}
}

func TestLoad_InvalidBudgets(t *testing.T) {
	clearProviderEnv(t)

	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing name", yaml: "budgets:\n  - monthly_budget: 10\n"},
		{name: "duplicate name", yaml: "budgets:\n  - name: Food\n  - name: Food\n"},
		{name: "bad amount", yaml: "budgets:\n  - name: Food\n    monthly_budget: lots\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newTestViper(t, tt.yaml))
			var cfgErr *common.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestNewViper_ReadsConfigFile(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("AUTOBUDGET_SETTINGS_CONCURRENCY", "8")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, writeFile(path, "settings:\n  lookback_days: 30\n"))

	v, err := NewViper(path)
	require.NoError(t, err)

	s, err := LoadSettings(v)
	require.NoError(t, err)
	assert.Equal(t, 30, s.LookbackDays)
	assert.Equal(t, 8, s.Concurrency, "env overrides use the AUTOBUDGET prefix")
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/test")
	t.Setenv("DATA_DIR", "/data")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, "/home/test/budget.db", ExpandPath("~/budget.db"))
	assert.Equal(t, "/home/test", ExpandPath("~"))
	assert.Equal(t, "/data/budget.db", ExpandPath("$DATA_DIR/budget.db"))
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
