package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cascade-rentals/opsdash/internal/server"
	"github.com/cascade-rentals/opsdash/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    server.Config   `yaml:"server" mapstructure:"server"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Import    ImportConfig    `yaml:"import" mapstructure:"import"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	Path        string           `yaml:"path" mapstructure:"path"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ReconcileConfig configures the reconciliation engine and its source
// accessors.
type ReconcileConfig struct {
	AccessorTimeoutSecs int     `yaml:"accessor_timeout_secs" mapstructure:"accessor_timeout_secs"`
	PolicyFile          string  `yaml:"policy_file" mapstructure:"policy_file"`
	RFIDConfidenceFloor float64 `yaml:"rfid_confidence_floor" mapstructure:"rfid_confidence_floor"`
	POSFreshnessHours   int     `yaml:"pos_freshness_hours" mapstructure:"pos_freshness_hours"`
}

// MonitorConfig configures the background health checker.
type MonitorConfig struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	MinHealthScore      int    `yaml:"min_health_score" mapstructure:"min_health_score"`
	Location            string `yaml:"location" mapstructure:"location"`
}

// ImportConfig configures feed ingestion.
type ImportConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OPSDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "opsdash.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("reconcile.accessor_timeout_secs", 5)
	v.SetDefault("reconcile.rfid_confidence_floor", 0.25)
	v.SetDefault("reconcile.pos_freshness_hours", 48)
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.check_interval_secs", 300)
	v.SetDefault("monitor.lookback_window_hours", 168)
	v.SetDefault("monitor.min_health_score", 60)
	v.SetDefault("import.batch_size", 500)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the configuration needed for the given command mode.
// Modes: "serve", "import", "reconcile".
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}

	switch mode {
	case "serve":
		checkStore()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Reconcile.AccessorTimeoutSecs <= 0 {
			problems = append(problems, "reconcile.accessor_timeout_secs must be > 0")
		}
		if c.Reconcile.RFIDConfidenceFloor < 0 || c.Reconcile.RFIDConfidenceFloor > 1 {
			problems = append(problems, "reconcile.rfid_confidence_floor must be between 0 and 1")
		}
		if c.Monitor.Enabled && (c.Monitor.MinHealthScore < 0 || c.Monitor.MinHealthScore > 100) {
			problems = append(problems, "monitor.min_health_score must be between 0 and 100")
		}
	case "import":
		checkStore()
		if c.Import.BatchSize < 0 {
			problems = append(problems, "import.batch_size must be >= 0")
		}
	case "reconcile":
		checkStore()
		if c.Reconcile.AccessorTimeoutSecs <= 0 {
			problems = append(problems, "reconcile.accessor_timeout_secs must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
