package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderNone      = "none"
)

// Keys under which CLI flags are bound in viper.
const (
	KeyPort        = "port"
	KeyDatabaseURL = "database-url"
	KeyNatsURL     = "nats-url"
	KeyLogLevel    = "log-level"
	KeyProvider    = "provider"
	KeyModel       = "model"
	KeyAPIURL      = "api-url"
	KeyAPIToken    = "api-token"
)

type Config struct {
	Port              int
	NatsURL           string
	NatsToken         string
	DatabaseURL       string
	LogLevel          string
	APIToken          string
	APIURL            string
	LLMProvider       string
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	GeminiAPIKey      string
	Model             string
	LabelThreshold    int
	LabelWindow       int
	PlaceholderLabel  string
	GeneratorTimeout  time.Duration
	StoreTimeout      time.Duration
	BackfillInterval  time.Duration
	ReconcileInterval time.Duration
}

func Load() Config {
	return Config{
		Port:              envInt("CAPTION_PORT", 8760),
		NatsURL:           envStr("NATS_URL", ""),
		NatsToken:         envStr("NATS_TOKEN", ""),
		DatabaseURL:       envStr("DATABASE_URL", "sqlite://caption.db"),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		APIToken:          envStr("CAPTION_API_TOKEN", ""),
		APIURL:            envStr("CAPTION_API_URL", "http://localhost:8760"),
		LLMProvider:       envStr("CAPTION_LLM_PROVIDER", ProviderAnthropic),
		AnthropicAPIKey:   envStr("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:      envStr("OPENAI_API_KEY", ""),
		GeminiAPIKey:      envStr("GEMINI_API_KEY", ""),
		Model:             envStr("CAPTION_MODEL", ""),
		LabelThreshold:    envInt("CAPTION_LABEL_THRESHOLD", 3),
		LabelWindow:       envInt("CAPTION_LABEL_WINDOW", 6),
		PlaceholderLabel:  envStr("CAPTION_PLACEHOLDER_LABEL", "New Conversation"),
		GeneratorTimeout:  envDuration("CAPTION_GENERATOR_TIMEOUT", 15*time.Second),
		StoreTimeout:      envDuration("CAPTION_STORE_TIMEOUT", 5*time.Second),
		BackfillInterval:  envDuration("CAPTION_BACKFILL_INTERVAL", 5*time.Minute),
		ReconcileInterval: envDuration("CAPTION_RECONCILE_INTERVAL", 30*time.Second),
	}
}

// LoadDotEnv loads variables from the given files (default ".env") without overriding
// the environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyFlags overrides fields with any flag that was set on the command line.
func (c *Config) ApplyFlags(v *viper.Viper) {
	if v.IsSet(KeyPort) {
		c.Port = v.GetInt(KeyPort)
	}
	if v.IsSet(KeyDatabaseURL) {
		c.DatabaseURL = v.GetString(KeyDatabaseURL)
	}
	if v.IsSet(KeyNatsURL) {
		c.NatsURL = v.GetString(KeyNatsURL)
	}
	if v.IsSet(KeyLogLevel) {
		c.LogLevel = v.GetString(KeyLogLevel)
	}
	if v.IsSet(KeyProvider) {
		c.LLMProvider = v.GetString(KeyProvider)
	}
	if v.IsSet(KeyModel) {
		c.Model = v.GetString(KeyModel)
	}
	if v.IsSet(KeyAPIURL) {
		c.APIURL = v.GetString(KeyAPIURL)
	}
	if v.IsSet(KeyAPIToken) {
		c.APIToken = v.GetString(KeyAPIToken)
	}
}

func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("unknown CAPTION_LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.LabelThreshold < 1 {
		return fmt.Errorf("CAPTION_LABEL_THRESHOLD must be at least 1, got %d", c.LabelThreshold)
	}
	if c.LabelWindow < 1 {
		return fmt.Errorf("CAPTION_LABEL_WINDOW must be at least 1, got %d", c.LabelWindow)
	}
	if c.PlaceholderLabel == "" {
		return fmt.Errorf("CAPTION_PLACEHOLDER_LABEL must not be empty")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
