package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/galexite/guildsync"
	"github.com/galexite/guildsync/client"
	"github.com/galexite/guildsync/database"
	guildhttp "github.com/galexite/guildsync/http"
	"github.com/galexite/guildsync/keybackend"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GUILDSYNC"

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for guildsync.
type Config struct {
	Env         string                       `mapstructure:"env" validate:"required,oneof=dev prod"`
	Bucket      BucketConfig                 `mapstructure:"bucket"`
	Credentials keybackend.CredentialsConfig `mapstructure:"credentials"`
	HTTP        HTTPConfig                   `mapstructure:"http"`
	Sync        SyncConfig                   `mapstructure:"sync"`
	State       database.Config              `mapstructure:"state"`
	Storage     StorageConfig                `mapstructure:"storage"`
	Server      ServerConfig                 `mapstructure:"server"`
	CORS        guildhttp.CORSConfig         `mapstructure:"cors"`
	Metrics     MetricsConfig                `mapstructure:"metrics"`
	Log         LogConfig                    `mapstructure:"log"`
}

// BucketConfig locates the bucket the resources are fetched from.
type BucketConfig struct {
	URL    string `mapstructure:"url" validate:"omitempty,http_url"`
	Host   string `mapstructure:"host" validate:"omitempty,hostname_port|hostname"`
	Region string `mapstructure:"region" validate:"required"`
}

// HTTPConfig tunes the HTTP client used for bucket requests.
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" validate:"min=0"`
	MaxIdleConns int           `mapstructure:"max_idle_conns" validate:"min=0"`
}

// SyncConfig controls which resources are synced and how often.
// An Interval of zero runs a single cycle.
type SyncConfig struct {
	Interval  time.Duration `mapstructure:"interval" validate:"min=0"`
	Resources []string      `mapstructure:"resources"`
}

// StorageConfig holds payload storage configuration.
type StorageConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ServerConfig holds mirror server configuration.
type ServerConfig struct {
	Port int                   `mapstructure:"port" validate:"required,min=1,max=65535"`
	Auth string                `mapstructure:"auth" validate:"required,oneof=public private"`
	Keys keybackend.KeysConfig `mapstructure:"keys"`
}

// MetricsConfig toggles the /metrics route.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// Resources returns the configured resources, or every resource when none
// are listed.
func (c *Config) Resources() ([]guildsync.Resource, error) {
	if len(c.Sync.Resources) == 0 {
		return guildsync.Resources, nil
	}
	return guildsync.ParseResources(c.Sync.Resources)
}

// ClientConfig resolves credentials and returns the bucket client config.
func (c *Config) ClientConfig(ctx context.Context) (*client.Config, error) {
	provider, err := keybackend.NewCredentialsProvider(ctx, c.Credentials)
	if err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}

	creds, err := keybackend.ResolveCredentials(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}

	cfg := &client.Config{
		BaseURL:   c.Bucket.URL,
		Host:      c.Bucket.Host,
		Region:    c.Bucket.Region,
		AccessKey: creds.AccessKey,
		SecretKey: creds.SecretKey,
	}
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}

	return cfg, nil
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"bucket-url":   "bucket.url",
	"bucket-host":  "bucket.host",
	"region":       "bucket.region",
	"access-key":   "credentials.access_key",
	"secret-key":   "credentials.secret_key",
	"keys-file":    "credentials.keys_file",
	"profile":      "credentials.profile",
	"timeout":      "http.timeout",
	"interval":     "sync.interval",
	"resources":    "sync.resources",
	"db-type":      "state.type",
	"db-dsn":       "state.dsn",
	"storage-path": "storage.path",
	"port":         "server.port",
	"auth":         "server.auth",
	"metrics":      "metrics.enabled",
	"log-level":    "log.level",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		viperKey, ok := flagToViperKey[f.Name]
		if !ok {
			return
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance. Every key
// has a default so that AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")

	v.SetDefault("bucket.url", "")
	v.SetDefault("bucket.host", "")
	v.SetDefault("bucket.region", "us-east-1")

	v.SetDefault("credentials.access_key", "")
	v.SetDefault("credentials.secret_key", "")
	v.SetDefault("credentials.keys_file", "")
	v.SetDefault("credentials.profile", "")
	v.SetDefault("credentials.shared_credentials_file", "")

	v.SetDefault("http.timeout", client.DefaultTimeout)
	v.SetDefault("http.max_idle_conns", 4)

	v.SetDefault("sync.interval", time.Duration(0))
	v.SetDefault("sync.resources", []string{})

	v.SetDefault("state.type", "sqlite")
	v.SetDefault("state.dsn", "guildsync.db")
	v.SetDefault("state.table", database.DefaultTable)

	v.SetDefault("storage.path", "./data")

	v.SetDefault("server.port", 5709)
	v.SetDefault("server.auth", "public")
	v.SetDefault("server.keys.file", "")

	v.SetDefault("cors.enabled", false)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "HEAD"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "X-Amz-Date", "X-Amz-Content-Sha256"})
	v.SetDefault("cors.exposed_headers", []string{"ETag", "Last-Modified"})
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("metrics.enabled", false)

	v.SetDefault("log.level", "info")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("guildsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if _, err := cfg.Resources(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
