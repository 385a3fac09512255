package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-import/internal/dedupe"
	"github.com/sells-group/lead-import/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig   `yaml:"store" mapstructure:"store"`
	Log    LogConfig     `yaml:"log" mapstructure:"log"`
	Dedupe dedupe.Config `yaml:"dedupe" mapstructure:"dedupe"`
	Import ImportConfig  `yaml:"import" mapstructure:"import"`
	Retry  RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Tenant TenantConfig  `yaml:"tenant" mapstructure:"tenant"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ImportConfig bounds uploads and listings.
type ImportConfig struct {
	MaxFileBytes     int64 `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	PreviewDefault   int   `yaml:"preview_default" mapstructure:"preview_default"`
	PageSizeDefault  int   `yaml:"page_size_default" mapstructure:"page_size_default"`
	BatchConcurrency int   `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
}

// RetryConfig configures replay of transactions the database aborted.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// Policy converts the settings to a resilience policy.
func (r RetryConfig) Policy() resilience.RetryConfig {
	return resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs)
}

// TenantConfig supplies identities for CLI use, where no session exists.
type TenantConfig struct {
	ID      string `yaml:"id" mapstructure:"id"`
	ActorID string `yaml:"actor_id" mapstructure:"actor_id"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("dedupe.soft_threshold", dedupe.DefaultSoftThreshold)
	v.SetDefault("dedupe.name_weight", dedupe.DefaultNameWeight)
	v.SetDefault("dedupe.city_weight", dedupe.DefaultCityWeight)
	v.SetDefault("import.max_file_bytes", 50<<20)
	v.SetDefault("import.preview_default", 20)
	v.SetDefault("import.page_size_default", 25)
	v.SetDefault("import.batch_concurrency", 4)
	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.initial_backoff_ms", 20)
	v.SetDefault("retry.max_backoff_ms", 1000)
	v.SetDefault("tenant.id", "default")
	v.SetDefault("tenant.actor_id", "cli")
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADIMPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "store" for commands
// that only touch the database, or "import" for commands that also parse
// uploads and classify rows.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "store", "import":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
		if c.Store.MaxConns < 0 || c.Store.MinConns < 0 || (c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns) {
			errs = append(errs, "store.min_conns must be between 0 and store.max_conns")
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the sqlite driver (a file path)")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}

	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 20 {
		errs = append(errs, "retry.max_attempts must be between 1 and 20")
	}

	if mode == "import" {
		d := c.Dedupe
		if d.SoftThreshold <= 0 || d.SoftThreshold > 1 {
			errs = append(errs, "dedupe.soft_threshold must be in (0, 1]")
		}
		if d.NameWeight < 0 || d.CityWeight < 0 || d.NameWeight+d.CityWeight > 1.000001 {
			errs = append(errs, "dedupe.name_weight and dedupe.city_weight must be >= 0 and sum to at most 1")
		}
		if c.Import.MaxFileBytes <= 0 {
			errs = append(errs, "import.max_file_bytes must be > 0")
		}
		if c.Import.PreviewDefault < 1 || c.Import.PreviewDefault > 200 {
			errs = append(errs, "import.preview_default must be between 1 and 200")
		}
		if c.Import.PageSizeDefault < 1 || c.Import.PageSizeDefault > 100 {
			errs = append(errs, "import.page_size_default must be between 1 and 100")
		}
		if c.Import.BatchConcurrency < 1 || c.Import.BatchConcurrency > 32 {
			errs = append(errs, "import.batch_concurrency must be between 1 and 32")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// WriteExample writes a config.yaml populated with the defaults to path.
func WriteExample(path string) error {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return eris.Wrap(err, "config: unmarshal defaults")
	}
	cfg.Store.DatabaseURL = "postgres://localhost:5432/leads?sslmode=disable"

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return eris.Wrap(err, "config: marshal example")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return eris.Wrapf(err, "config: write %s", path)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
