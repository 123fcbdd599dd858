package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Store         StoreConfig
	AI            AIConfig
	Speech        SpeechConfig
	Archive       ArchiveConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type StoreConfig struct {
	Driver      string
	DSN         string
	Timeout     time.Duration
	AutoMigrate bool
	// Guard is one of off, read_only or strict.
	Guard string
}

type AIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type SpeechConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type ArchiveConfig struct {
	Enabled bool
	Prefix  string
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	GuardOff      = "off"
	GuardReadOnly = "read_only"
	GuardStrict   = "strict"
)

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ASKQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ASKQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	// Variables read by earlier deployments; ASKQL_ keys below take precedence.
	if raw, ok := lookup("GEMINI_API_KEY"); ok && strings.TrimSpace(raw) != "" {
		cfg.AI.Provider = ProviderGemini
		cfg.AI.APIKey = strings.TrimSpace(raw)
	}
	if err := applyString(lookup, "HF_API_KEY", &cfg.Speech.APIKey); err != nil {
		return Config{}, err
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "ASKQL_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "ASKQL_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return apply(lookup, "ASKQL_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout, time.ParseDuration) },
		func() error { return apply(lookup, "ASKQL_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout, time.ParseDuration) },
		func() error { return apply(lookup, "ASKQL_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout, time.ParseDuration) },
		func() error { return applyString(lookup, "ASKQL_STORE_DRIVER", &cfg.Store.Driver) },
		func() error { return applyString(lookup, "ASKQL_STORE_DSN", &cfg.Store.DSN) },
		func() error { return apply(lookup, "ASKQL_STORE_TIMEOUT", &cfg.Store.Timeout, time.ParseDuration) },
		func() error { return apply(lookup, "ASKQL_STORE_AUTO_MIGRATE", &cfg.Store.AutoMigrate, strconv.ParseBool) },
		func() error { return applyString(lookup, "ASKQL_SQL_GUARD", &cfg.Store.Guard) },
		func() error { return applyString(lookup, "ASKQL_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "ASKQL_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "ASKQL_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "ASKQL_AI_MODEL", &cfg.AI.Model) },
		func() error { return apply(lookup, "ASKQL_AI_TEMPERATURE", &cfg.AI.Temperature, parseFloat) },
		func() error { return apply(lookup, "ASKQL_AI_TIMEOUT", &cfg.AI.Timeout, time.ParseDuration) },
		func() error { return applyString(lookup, "ASKQL_SPEECH_URL", &cfg.Speech.URL) },
		func() error { return applyString(lookup, "ASKQL_SPEECH_API_KEY", &cfg.Speech.APIKey) },
		func() error { return apply(lookup, "ASKQL_SPEECH_TIMEOUT", &cfg.Speech.Timeout, time.ParseDuration) },
		func() error { return apply(lookup, "ASKQL_ARCHIVE_ENABLED", &cfg.Archive.Enabled, strconv.ParseBool) },
		func() error { return applyString(lookup, "ASKQL_ARCHIVE_PREFIX", &cfg.Archive.Prefix) },
		func() error { return applyString(lookup, "ASKQL_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "ASKQL_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "ASKQL_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "ASKQL_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "ASKQL_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return apply(lookup, "ASKQL_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL, strconv.ParseBool) },
		func() error { return applyString(lookup, "ASKQL_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return apply(lookup, "ASKQL_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket, strconv.ParseBool)
		},
		func() error { return apply(lookup, "ASKQL_LOG_JSON", &cfg.Observability.LogJSON, strconv.ParseBool) },
		func() error { return apply(lookup, "ASKQL_LOG_LEVEL", &cfg.Observability.LogLevel, parseLogLevel) },
		func() error { return apply(lookup, "ASKQL_AUTH_REQUIRED", &cfg.Auth.Required, strconv.ParseBool) },
		func() error { return applyString(lookup, "ASKQL_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, fn := range appliers {
		if err := fn(); err != nil {
			return Config{}, err
		}
	}

	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	cfg.Store.Guard = strings.ToLower(cfg.Store.Guard)
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	switch cfg.Store.Driver {
	case "sqlite", "duckdb", "pgx":
	default:
		return Config{}, fmt.Errorf("invalid ASKQL_STORE_DRIVER: %q", cfg.Store.Driver)
	}
	switch cfg.Store.Guard {
	case GuardOff, GuardReadOnly, GuardStrict:
	default:
		return Config{}, fmt.Errorf("invalid ASKQL_SQL_GUARD: %q", cfg.Store.Guard)
	}
	switch cfg.AI.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return Config{}, fmt.Errorf("invalid ASKQL_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	if cfg.AI.Provider == ProviderGemini {
		if cfg.AI.Model == defaultOpenAIModel {
			cfg.AI.Model = defaultGeminiModel
		}
		if cfg.AI.BaseURL == defaultOpenAIBaseURL {
			cfg.AI.BaseURL = ""
		}
	}
	return cfg, nil
}

const (
	defaultOpenAIModel   = "gpt-5"
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultGeminiModel = "gemini-1.5-flash-latest"
)

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "askql"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Store: StoreConfig{
			Driver:      "sqlite",
			DSN:         "database.db",
			Timeout:     10 * time.Second,
			AutoMigrate: true,
			Guard:       GuardReadOnly,
		},
		AI: AIConfig{
			Provider:    ProviderOpenAI,
			BaseURL:     defaultOpenAIBaseURL,
			Model:       defaultOpenAIModel,
			Temperature: 0.1,
			Timeout:     15 * time.Second,
		},
		Speech: SpeechConfig{
			URL:     "https://api-inference.huggingface.co/models/openai/whisper-large-v3",
			Timeout: 30 * time.Second,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Prefix:  "results",
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "askql",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Store.AutoMigrate = false
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func apply[T any](lookup LookupFunc, key string, dst *T, parse func(string) (T, error)) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	return apply(lookup, key, dst, func(raw string) (string, error) { return raw, nil })
}

func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(raw, 64)
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", raw)
	}
}
