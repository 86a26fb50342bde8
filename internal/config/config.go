// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. PREDICT_SERVICE_HTTP_PORT.
const EnvPrefix = "PREDICT_SERVICE"

// Config holds all configuration for the service
type Config struct {
	// Server configuration
	Port        int `mapstructure:"port"`
	HTTPPort    int `mapstructure:"http_port"`
	MetricsPort int `mapstructure:"metrics_port"`

	// Apps and models
	ModelDir    string   `mapstructure:"model_dir"`
	AppsDir     string   `mapstructure:"apps_dir"`
	Apps        []string `mapstructure:"apps"`
	ONNXLibrary string   `mapstructure:"onnx_library"`

	// Prediction cache; an empty Redis address keeps the cache in-process only
	Redis         string        `mapstructure:"redis"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheSize     int           `mapstructure:"cache_size"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// Feature flags
	UseMockInference bool `mapstructure:"use_mock_inference"`
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"port":         "port",
	"http-port":    "http_port",
	"metrics-port": "metrics_port",
	"model-dir":    "model_dir",
	"apps-dir":     "apps_dir",
	"apps":         "apps",
	"redis":        "redis",
	"log-level":    "log_level",
	"mock":         "use_mock_inference",
}

// Flags returns the command-line flags Load understands.
func Flags() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("predict-service", pflag.ContinueOnError)
	flagSet.String("config", "", "Path to config file (optional)")
	flagSet.Int("port", 50051, "gRPC server port")
	flagSet.Int("http-port", 8080, "Web UI and JSON API port")
	flagSet.Int("metrics-port", 9100, "Prometheus metrics and health port")
	flagSet.String("model-dir", "models", "Directory holding model artifacts")
	flagSet.String("apps-dir", "", "Directory of extra app definitions (optional)")
	flagSet.StringSlice("apps", nil, "Serve only these apps (default: all)")
	flagSet.String("redis", "", "Redis address for the shared prediction cache (optional)")
	flagSet.String("log-level", "info", "Log level: debug, info, warn, error")
	flagSet.Bool("mock", false, "Use mock inference engines (for testing)")
	return flagSet
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("port", 50051)
	v.SetDefault("http_port", 8080)
	v.SetDefault("metrics_port", 9100)
	v.SetDefault("model_dir", "models")
	v.SetDefault("apps_dir", "")
	v.SetDefault("apps", []string{})
	v.SetDefault("onnx_library", "")
	v.SetDefault("redis", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_ttl", 10*time.Minute)
	v.SetDefault("cache_size", 1024)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_file", "")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("use_mock_inference", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also honor the OTEL standard env var
	v.BindEnv("otel_endpoint", EnvPrefix+"_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("use_mock_inference", EnvPrefix+"_USE_MOCK_INFERENCE", EnvPrefix+"_USE_MOCK")

	return v
}

// Load loads configuration from flags, environment variables, a .env file and
// an optional config file.
// Priority (highest to lowest): flags > env vars > config file > defaults
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := newViper()

	configFile := ""
	if flags != nil {
		configFile, _ = flags.GetString("config")
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/predict-service/")
		v.AddConfigPath("$HOME/.predict-service")

		// Read config file if present (ignore error if not found)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	// An endpoint implies tracing
	if v.GetString("otel_endpoint") != "" {
		v.Set("otel_enabled", true)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	ports := map[string]int{"port": c.Port, "http_port": c.HTTPPort, "metrics_port": c.MetricsPort}
	seen := make(map[int]string, len(ports))
	for _, name := range []string{"port", "http_port", "metrics_port"} {
		p := ports[name]
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid %s: %d", name, p)
		}
		if other, dup := seen[p]; dup {
			return fmt.Errorf("%s and %s must be different", other, name)
		}
		seen[p] = name
	}
	if c.ModelDir == "" && !c.UseMockInference {
		return fmt.Errorf("model_dir is required when not using mock inference")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("invalid cache_ttl: %s", c.CacheTTL)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log_format: %q", c.LogFormat)
	}
	return nil
}
