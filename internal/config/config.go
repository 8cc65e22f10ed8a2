package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const minRefreshMargin = 30 * time.Second

type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		Mode         string        `mapstructure:"mode"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	OAuth struct {
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		TokenURL     string `mapstructure:"token_url"`
		Scope        string `mapstructure:"scope"`
		// RefreshMargin is subtracted from every token's reported expiry.
		// Values below 30s are raised to 30s.
		RefreshMargin time.Duration `mapstructure:"refresh_margin"`
		// RefreshInterval enables the background token refresh loop when
		// positive.
		RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	} `mapstructure:"oauth"`

	Upstream struct {
		TxCacheURL          string `mapstructure:"tx_cache_url"`
		PermissionCheckPath string `mapstructure:"permission_check_path"`
		CheckEnabled        bool   `mapstructure:"check_enabled"`
	} `mapstructure:"upstream"`

	Redis struct {
		URL         string        `mapstructure:"url"`
		PoolSize    int           `mapstructure:"pool_size"`
		DecisionTTL time.Duration `mapstructure:"decision_ttl"`
	} `mapstructure:"redis"`

	Perms struct {
		AllowedSubjects []string `mapstructure:"allowed_subjects"`
		ExposeReasons   bool     `mapstructure:"expose_reasons"`
	} `mapstructure:"perms"`

	Observability struct {
		TraceEnabled       bool   `mapstructure:"trace_enabled"`
		TracingEndpointURL string `mapstructure:"tracing_endpoint_url"`
		LogLevel           string `mapstructure:"log_level"`
		Format             string `mapstructure:"log_format"`
		LogSource          bool   `mapstructure:"log_source"`
	} `mapstructure:"observability"`
}

func MustLoad() *Config {
	v := viper.New()

	logger := slog.Default()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvPrefix("TXCACHE_AUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Error("Failed to read config", slog.Any("error", err))
		os.Exit(1)
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			logger.Info("No environment-specific config (optional)", slog.String("env", env))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		logger.Error("Failed to unmarshal config", slog.Any("error", err))
		os.Exit(1)
	}

	cfg.normalize()

	return &cfg
}

func (c *Config) normalize() {
	if c.OAuth.RefreshMargin < minRefreshMargin {
		c.OAuth.RefreshMargin = minRefreshMargin
	}
}
