// Package config loads application configuration from the config file, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/llm"
	"github.com/Veraticus/autobudgeter/internal/model"
	"github.com/Veraticus/autobudgeter/internal/plaid"
	"github.com/Veraticus/autobudgeter/internal/sheets"
	"github.com/Veraticus/autobudgeter/internal/simplefin"
)

// EnvPrefix prefixes every environment override, e.g. AUTOBUDGET_SETTINGS_TIMEZONE.
const EnvPrefix = "AUTOBUDGET"

// Ingestion sources selectable with settings.source.
const (
	SourcePlaid     = "plaid"
	SourceSimpleFIN = "simplefin"
)

// DefaultDatabasePath is used when database.path is unset.
const DefaultDatabasePath = "$HOME/.local/share/autobudget/autobudget.db"

// Settings are the user-tunable behaviors of sync and categorization.
type Settings struct {
	Location              *time.Location
	Timezone              string
	Source                string
	LLMProvider           string
	AutoSyncCron          string
	ExportDestination     model.ExportDestination
	ConfidenceThreshold   float64
	SuggestedRulePriority int
	LookbackDays          int
	OverlapDays           int
	Concurrency           int
	LLMEnabled            bool
	AutoSyncEnabled       bool
	AutoPushToSheets      bool
}

// AuditConfig configures the optional audit event publisher.
type AuditConfig struct {
	AMQPURL      string
	AMQPExchange string
}

// Config is the fully resolved application configuration.
type Config struct {
	DatabasePath string
	Settings     Settings
	Audit        AuditConfig
	Plaid        plaid.Config
	SimpleFIN    simplefin.Config
	Sheets       sheets.Config
	LLM          []llm.Config
	Budgets      []model.CategoryBudget
	LLMCacheTTL  time.Duration
}

// Categories returns the configured category names in budget order.
func (c *Config) Categories() []string {
	return model.CategoryNames(c.Budgets)
}

// NewViper prepares a viper instance: config file search paths, AUTOBUDGET_ env
// overrides, defaults, and a best-effort .env load. A missing config file is not an error.
func NewViper(cfgFile string) (*viper.Viper, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".config", "autobudget"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// SetDefaults registers every default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("settings.timezone", "Asia/Kolkata")
	v.SetDefault("settings.source", SourcePlaid)
	v.SetDefault("settings.confidence_threshold", 0.75)
	v.SetDefault("settings.suggested_rule_priority", 0)
	v.SetDefault("settings.llm_enabled", true)
	v.SetDefault("settings.llm_provider", llm.ProviderOpenRouter)
	v.SetDefault("settings.auto_sync_enabled", false)
	v.SetDefault("settings.auto_sync_cron", "0 9 * * *")
	v.SetDefault("settings.auto_push_to_sheets", false)
	v.SetDefault("settings.export_destination", string(model.ExportNative))
	v.SetDefault("settings.lookback_days", 90)
	v.SetDefault("settings.overlap_days", 7)
	v.SetDefault("settings.concurrency", 4)

	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 256)
	v.SetDefault("llm.rate_limit", 60)
	v.SetDefault("llm.cache_ttl", 24*time.Hour)

	v.SetDefault("audit.amqp_exchange", "autobudget.audit")
}

// Load resolves the whole configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	settings, err := LoadSettings(v)
	if err != nil {
		return nil, err
	}

	budgets, err := loadBudgets(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabasePath: ExpandPath(v.GetString("database.path")),
		Settings:     settings,
		Plaid:        loadPlaid(v, settings),
		SimpleFIN:    loadSimpleFIN(v, settings),
		Sheets:       LoadSheetsConfig(v),
		LLM:          loadLLM(v),
		LLMCacheTTL:  v.GetDuration("llm.cache_ttl"),
		Budgets:      budgets,
		Audit: AuditConfig{
			AMQPURL:      v.GetString("audit.amqp_url"),
			AMQPExchange: v.GetString("audit.amqp_exchange"),
		},
	}
	return cfg, nil
}

// LoadSettings resolves and validates only the settings block. The scheduler calls it
// repeatedly to pick up edits.
func LoadSettings(v *viper.Viper) (Settings, error) {
	s := Settings{
		Timezone:              v.GetString("settings.timezone"),
		Source:                strings.ToLower(v.GetString("settings.source")),
		ConfidenceThreshold:   v.GetFloat64("settings.confidence_threshold"),
		SuggestedRulePriority: v.GetInt("settings.suggested_rule_priority"),
		LLMEnabled:            v.GetBool("settings.llm_enabled"),
		LLMProvider:           strings.ToLower(v.GetString("settings.llm_provider")),
		AutoSyncEnabled:       v.GetBool("settings.auto_sync_enabled"),
		AutoSyncCron:          v.GetString("settings.auto_sync_cron"),
		AutoPushToSheets:      v.GetBool("settings.auto_push_to_sheets"),
		ExportDestination:     model.ExportDestination(strings.ToLower(v.GetString("settings.export_destination"))),
		LookbackDays:          v.GetInt("settings.lookback_days"),
		OverlapDays:           v.GetInt("settings.overlap_days"),
		Concurrency:           v.GetInt("settings.concurrency"),
	}
	if err := s.validate(); err != nil {
		return Settings{}, err
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return Settings{}, common.NewConfigurationError("settings.timezone", err)
	}
	s.Location = loc
	return s, nil
}

func (s Settings) validate() error {
	if s.Timezone == "" {
		return common.NewConfigurationError("settings.timezone", nil)
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return common.NewConfigurationError("settings.confidence_threshold",
			fmt.Errorf("%w: must be between 0 and 1, got %v", common.ErrInvalidConfig, s.ConfidenceThreshold))
	}
	if s.Source != SourcePlaid && s.Source != SourceSimpleFIN {
		return common.NewConfigurationError("settings.source",
			fmt.Errorf("%w: must be plaid or simplefin, got %q", common.ErrInvalidConfig, s.Source))
	}
	if !s.ExportDestination.Valid() {
		return common.NewConfigurationError("settings.export_destination",
			fmt.Errorf("%w: must be native or google_sheets, got %q", common.ErrInvalidConfig, s.ExportDestination))
	}
	if s.AutoSyncEnabled && strings.TrimSpace(s.AutoSyncCron) == "" {
		return common.NewConfigurationError("settings.auto_sync_cron", nil)
	}
	if s.LookbackDays < 1 {
		return common.NewConfigurationError("settings.lookback_days",
			fmt.Errorf("%w: must be positive", common.ErrInvalidConfig))
	}
	if s.Concurrency < 1 {
		return common.NewConfigurationError("settings.concurrency",
			fmt.Errorf("%w: must be positive", common.ErrInvalidConfig))
	}
	return nil
}

type budgetEntry struct {
	Name          string `mapstructure:"name"`
	MonthlyBudget string `mapstructure:"monthly_budget"`
}

func loadBudgets(v *viper.Viper) ([]model.CategoryBudget, error) {
	if !v.IsSet("budgets") {
		return append([]model.CategoryBudget(nil), model.DefaultBudgets...), nil
	}

	var entries []budgetEntry
	if err := v.UnmarshalKey("budgets", &entries); err != nil {
		return nil, common.NewConfigurationError("budgets", err)
	}

	seen := make(map[string]bool, len(entries))
	budgets := make([]model.CategoryBudget, 0, len(entries))
	for i, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, common.NewConfigurationError(fmt.Sprintf("budgets[%d].name", i), nil)
		}
		if seen[name] {
			return nil, common.NewConfigurationError(fmt.Sprintf("budgets[%d].name", i),
				fmt.Errorf("%w: duplicate category %q", common.ErrInvalidConfig, name))
		}
		seen[name] = true

		amount := decimal.Zero
		if strings.TrimSpace(e.MonthlyBudget) != "" {
			var err error
			if amount, err = decimal.NewFromString(strings.TrimSpace(e.MonthlyBudget)); err != nil {
				return nil, common.NewConfigurationError(fmt.Sprintf("budgets[%d].monthly_budget", i), err)
			}
		}
		budgets = append(budgets, model.CategoryBudget{Name: name, MonthlyBudget: amount})
	}
	return budgets, nil
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
