// Package config decodes the typed runtime configuration from viper.
//
// Keys, defaults and environment bindings are registered by the cmd package;
// this package only decodes, validates, and converts to the option structs
// of the domain packages. Nothing here is global: serve builds one Config and
// passes it down.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/3leaps/jobscope/pkg/catalog"
	"github.com/3leaps/jobscope/pkg/jobmetrics"
	"github.com/3leaps/jobscope/pkg/jobstore"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Health    HealthConfig    `mapstructure:"health"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RequestTimeout bounds each request's record-store round trips.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Addr is host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	URL             string        `mapstructure:"url"`
	AuthToken       string        `mapstructure:"auth_token"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// JobStore converts to the record-store options.
func (s StoreConfig) JobStore() jobstore.Config {
	return jobstore.Config{
		Driver:          s.Driver,
		Path:            s.Path,
		URL:             s.URL,
		AuthToken:       s.AuthToken,
		DSN:             s.DSN,
		Host:            s.Host,
		Port:            s.Port,
		User:            s.User,
		Password:        s.Password,
		Name:            s.Name,
		MaxOpenConns:    s.MaxOpenConns,
		ConnMaxLifetime: s.ConnMaxLifetime,
	}
}

// JobsConfig holds the metric thresholds. All are operational knobs.
type JobsConfig struct {
	StatsLongRunningThreshold time.Duration `mapstructure:"stats_long_running_threshold"`
	ListLongRunningThreshold  time.Duration `mapstructure:"list_long_running_threshold"`
	DefaultBaseline           time.Duration `mapstructure:"default_baseline"`
	RecentLimit               int           `mapstructure:"recent_limit"`
	MaxLimit                  int           `mapstructure:"max_limit"`

	// DefaultDays is the window for the job listing when none is given.
	DefaultDays int `mapstructure:"default_days"`
}

// Metrics converts to aggregator options. baselines come from the catalog.
func (j JobsConfig) Metrics(baselines map[string]time.Duration) jobmetrics.Config {
	return jobmetrics.Config{
		StatsLongRunningThreshold: j.StatsLongRunningThreshold,
		ListLongRunningThreshold:  j.ListLongRunningThreshold,
		DefaultBaseline:           j.DefaultBaseline,
		Baselines:                 baselines,
		RecentLimit:               j.RecentLimit,
		MaxLimit:                  j.MaxLimit,
	}
}

type CatalogConfig struct {
	// Source is a local path or s3://bucket/key. Empty uses the built-in catalog.
	Source string   `mapstructure:"source"`
	S3     S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Region          string `mapstructure:"region"`
	Profile         string `mapstructure:"profile"`
	Endpoint        string `mapstructure:"endpoint"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// S3Options converts to catalog fetch options.
func (s S3Config) S3Options() catalog.S3Options {
	return catalog.S3Options{
		Region:          s.Region,
		Profile:         s.Profile,
		Endpoint:        s.Endpoint,
		ForcePathStyle:  s.ForcePathStyle,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
	}
}

type CORSConfig struct {
	// AllowedOrigins are exact origins or doublestar globs; "*" allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.CORS.AllowedOrigins = trimAll(cfg.CORS.AllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	timeouts := []struct {
		key string
		d   time.Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"server.request_timeout", c.Server.RequestTimeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			add("%s must be positive", t.key)
		}
	}
	if c.Server.RequestTimeout > 0 && c.Server.WriteTimeout > 0 && c.Server.RequestTimeout > c.Server.WriteTimeout {
		add("server.request_timeout (%s) exceeds server.write_timeout (%s)", c.Server.RequestTimeout, c.Server.WriteTimeout)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level: %v", err)
	}
	if _, err := jobstore.ParseDialect(c.Store.Driver); err != nil {
		add("store.driver: %v", err)
	}

	if c.Jobs.StatsLongRunningThreshold <= 0 {
		add("jobs.stats_long_running_threshold must be positive")
	}
	if c.Jobs.ListLongRunningThreshold <= 0 {
		add("jobs.list_long_running_threshold must be positive")
	}
	if c.Jobs.DefaultBaseline < time.Minute {
		add("jobs.default_baseline must be at least 1m")
	}
	if c.Jobs.RecentLimit <= 0 || c.Jobs.MaxLimit <= 0 || c.Jobs.RecentLimit > c.Jobs.MaxLimit {
		add("jobs.recent_limit must be positive and not exceed jobs.max_limit")
	}
	if c.Jobs.DefaultDays <= 0 {
		add("jobs.default_days must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		add("rate_limit requires positive requests_per_second and burst when enabled")
	}
	if src := strings.TrimSpace(c.Catalog.Source); strings.HasPrefix(src, "s3://") {
		if _, _, err := catalog.ParseS3URI(src); err != nil {
			add("catalog.source: %v", err)
		}
	}

	return errors.Join(errs...)
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
