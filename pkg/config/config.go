package config

import (
	"fmt"
	"strings"
	"time"

	loggerpkg "github.com/minhyannv/vocab-enricher/pkg/logger"
)

// Persist policies.
const (
	PersistPerItem = "per-item"
	PersistOnce    = "once"
)

// Merge policies.
const (
	MergeReplace = "replace"
	MergeKeep    = "merge"
)

// Environment variable names.
const (
	EnvTenant        = "QLIK_CLOUD_TENANT"
	EnvAppID         = "QLIK_CLOUD_APPID"
	EnvEngineAPIKey  = "QLIK_CLOUD_APIKEY"
	EnvEngineURL     = "QLIK_ENGINE_URL"
	EnvOpenAIAPIKey  = "OPENAI_APIKEY"
	EnvOpenAIAPIKey2 = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvOpenAIModel   = "OPENAI_MODEL"
)

// Config holds all runtime configuration for an enrichment run.
type Config struct {
	Tenant        string
	AppID         string
	EngineAPIKey  string
	EngineURL     string
	SchemaVersion string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string

	VocabularyID string
	Locale       string
	Persist      string
	Merge        string
	PromptFile   string
	Timeout      time.Duration

	Verbose bool
	Logger  loggerpkg.Logger
}

// DefaultConfig returns a baseline configuration without side effects.
func DefaultConfig() Config {
	return Config{
		SchemaVersion: "12.612.0",
		Model:         "gpt-4.1",
		VocabularyID:  "BusinessVocabulary",
		Locale:        "en",
		Persist:       PersistPerItem,
		Merge:         MergeReplace,
		Timeout:       60 * time.Second,
		Logger:        loggerpkg.NopLogger{},
	}
}

// Normalize sanitizes configuration values and applies defaults.
func Normalize(cfg Config) Config {
	defaults := DefaultConfig()

	cfg.Tenant = strings.TrimSpace(cfg.Tenant)
	cfg.Tenant = strings.TrimPrefix(strings.TrimPrefix(cfg.Tenant, "https://"), "wss://")
	cfg.Tenant = strings.TrimSuffix(cfg.Tenant, "/")
	cfg.AppID = strings.TrimSpace(cfg.AppID)
	cfg.EngineAPIKey = strings.TrimSpace(cfg.EngineAPIKey)
	cfg.EngineURL = strings.TrimSpace(cfg.EngineURL)
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = strings.TrimSpace(cfg.OpenAIBaseURL)
	cfg.PromptFile = strings.TrimSpace(cfg.PromptFile)
	cfg.Persist = strings.ToLower(strings.TrimSpace(cfg.Persist))
	cfg.Merge = strings.ToLower(strings.TrimSpace(cfg.Merge))

	if cfg.SchemaVersion = strings.TrimSpace(cfg.SchemaVersion); cfg.SchemaVersion == "" {
		cfg.SchemaVersion = defaults.SchemaVersion
	}
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.VocabularyID = strings.TrimSpace(cfg.VocabularyID); cfg.VocabularyID == "" {
		cfg.VocabularyID = defaults.VocabularyID
	}
	if cfg.Locale = strings.TrimSpace(cfg.Locale); cfg.Locale == "" {
		cfg.Locale = defaults.Locale
	}
	if cfg.Persist == "" {
		cfg.Persist = defaults.Persist
	}
	if cfg.Merge == "" {
		cfg.Merge = defaults.Merge
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Logger == nil {
		cfg.Logger = loggerpkg.NopLogger{}
	}
	return cfg
}

// Error reports every configuration problem found by Validate.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// Validate checks that all required values are present and enum values are known.
// It expects a normalized Config.
func Validate(cfg Config) error {
	cerr := &Error{}
	if cfg.Tenant == "" && cfg.EngineURL == "" {
		cerr.Missing = append(cerr.Missing, EnvTenant)
	}
	if cfg.AppID == "" {
		cerr.Missing = append(cerr.Missing, EnvAppID)
	}
	if cfg.EngineAPIKey == "" {
		cerr.Missing = append(cerr.Missing, EnvEngineAPIKey)
	}
	if cfg.OpenAIAPIKey == "" {
		cerr.Missing = append(cerr.Missing, EnvOpenAIAPIKey)
	}
	switch cfg.Persist {
	case PersistPerItem, PersistOnce:
	default:
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("persist=%q (want %s or %s)", cfg.Persist, PersistPerItem, PersistOnce))
	}
	switch cfg.Merge {
	case MergeReplace, MergeKeep:
	default:
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("merge=%q (want %s or %s)", cfg.Merge, MergeReplace, MergeKeep))
	}
	if len(cerr.Missing) > 0 || len(cerr.Invalid) > 0 {
		return cerr
	}
	return nil
}

// EngineEndpoint returns the WebSocket URL of the app's engine session.
func EngineEndpoint(cfg Config) string {
	if cfg.EngineURL != "" {
		return cfg.EngineURL
	}
	return fmt.Sprintf("wss://%s/app/%s", cfg.Tenant, cfg.AppID)
}
