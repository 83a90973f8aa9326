package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Veraticus/autobudgeter/internal/llm"
	"github.com/Veraticus/autobudgeter/internal/plaid"
	"github.com/Veraticus/autobudgeter/internal/simplefin"
)

// firstNonEmpty returns the viper value for key, falling back to the env vars in order.
func firstNonEmpty(v *viper.Viper, key string, envVars ...string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	for _, name := range envVars {
		if s := os.Getenv(name); s != "" {
			return s
		}
	}
	return ""
}

func loadPlaid(v *viper.Viper, settings Settings) plaid.Config {
	cfg := plaid.Config{
		ClientID:     firstNonEmpty(v, "plaid.client_id", "PLAID_CLIENT_ID"),
		Secret:       firstNonEmpty(v, "plaid.secret", "PLAID_SECRET"),
		AccessToken:  firstNonEmpty(v, "plaid.access_token", "PLAID_ACCESS_TOKEN"),
		BaseURL:      v.GetString("plaid.base_url"),
		LookbackDays: settings.LookbackDays,
	}
	cfg.Environment = firstNonEmpty(v, "plaid.environment", "PLAID_ENV")
	if cfg.Environment == "" {
		cfg.Environment = "sandbox"
	}
	return cfg
}

// loadSimpleFIN resolves SimpleFIN credentials. The claimed access URL is saved next
// to the database unless simplefin.state_path says otherwise.
func loadSimpleFIN(v *viper.Viper, settings Settings) simplefin.Config {
	statePath := v.GetString("simplefin.state_path")
	if statePath == "" {
		statePath = filepath.Join(filepath.Dir(ExpandPath(v.GetString("database.path"))), "simplefin_auth.json")
	}
	return simplefin.Config{
		Token:        firstNonEmpty(v, "simplefin.token", "SIMPLEFIN_TOKEN"),
		AccessURL:    firstNonEmpty(v, "simplefin.access_url", "SIMPLEFIN_ACCESS_URL"),
		StatePath:    ExpandPath(statePath),
		LookbackDays: settings.LookbackDays,
	}
}

// loadLLM returns a config for every provider whose API key is present. Providers
// without a key are left out; selecting one fails when the categorizer looks it up.
func loadLLM(v *viper.Viper) []llm.Config {
	base := llm.Config{
		Timeout:     v.GetDuration("llm.timeout"),
		Temperature: v.GetFloat64("llm.temperature"),
		MaxTokens:   v.GetInt("llm.max_tokens"),
		RateLimit:   v.GetInt("llm.rate_limit"),
	}

	providers := []struct {
		name     string
		keyEnv   string
		modelEnv string
	}{
		{llm.ProviderOpenRouter, "OPENROUTER_API_KEY", "OPENROUTER_MODEL"},
		{llm.ProviderGemini, "GEMINI_API_KEY", "GEMINI_MODEL"},
		{llm.ProviderOpenAI, "OPENAI_API_KEY", "OPENAI_MODEL"},
		{llm.ProviderAnthropic, "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL"},
	}

	var configs []llm.Config
	for _, p := range providers {
		key := firstNonEmpty(v, "llm."+p.name+".api_key", p.keyEnv)
		if key == "" {
			continue
		}
		cfg := base
		cfg.Provider = p.name
		cfg.APIKey = key
		cfg.Model = firstNonEmpty(v, "llm."+p.name+".model", p.modelEnv)
		cfg.BaseURL = v.GetString("llm." + p.name + ".base_url")
		configs = append(configs, cfg)
	}
	return configs
}
