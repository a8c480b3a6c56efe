package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Input  InputConfig  `yaml:"input" mapstructure:"input"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
	Schema SchemaConfig `yaml:"schema" mapstructure:"schema"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	FTP    FTPConfig    `yaml:"ftp" mapstructure:"ftp"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// InputConfig configures where and how branch submissions are read.
type InputConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	Sheet        string `yaml:"sheet" mapstructure:"sheet"`
	CSVDelimiter string `yaml:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVCharset   string `yaml:"csv_charset" mapstructure:"csv_charset"`
}

// Delimiter returns the CSV delimiter as a rune, or ',' when unset.
func (c InputConfig) Delimiter() rune {
	r := []rune(c.CSVDelimiter)
	if len(r) == 0 {
		return ','
	}
	return r[0]
}

// OutputConfig configures where run artifacts are written.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// SchemaConfig points at the column contract file. An empty path means the
// built-in returns contract.
type SchemaConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BatchConfig configures concurrent submission loading.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FTPConfig configures pulls from the branch submission drop.
type FTPConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	User        string  `yaml:"user" mapstructure:"user"`
	Password    string  `yaml:"password" mapstructure:"password"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// Timeout returns the configured dial timeout as a duration.
func (c FTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ServerConfig configures the run inspection API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("RETURNS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.dir", ".")
	v.SetDefault("input.csv_delimiter", ",")
	v.SetDefault("input.csv_charset", "utf-8")
	v.SetDefault("output.dir", "out")
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "returns.db")
	v.SetDefault("ftp.timeout_secs", 30)
	v.SetDefault("ftp.rate_per_sec", 4)
	v.SetDefault("server.port", 8080)
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

// Validate checks the configuration for the given command mode.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 32 {
		problems = append(problems, "batch.concurrency must be between 1 and 32")
	}
	if c.Input.CSVDelimiter != "" && len([]rune(c.Input.CSVDelimiter)) != 1 {
		problems = append(problems, "input.csv_delimiter must be a single character")
	}

	switch mode {
	case "consolidate":
		if c.Input.Dir == "" {
			problems = append(problems, "input.dir is required")
		}
		if c.Output.Dir == "" {
			problems = append(problems, "output.dir is required")
		}
	case "fetch":
		if c.FTP.URL == "" {
			problems = append(problems, "ftp.url is required")
		}
		if c.Input.Dir == "" {
			problems = append(problems, "input.dir is required")
		}
		if c.FTP.TimeoutSecs <= 0 {
			problems = append(problems, "ftp.timeout_secs must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
