package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethpandaops/smokeoor/pkg/fsutil"
	"github.com/ethpandaops/smokeoor/pkg/scheduler"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix for environment variable overrides, e.g.
	// SMOKEOOR_RUNNER_INTERVAL=30m.
	EnvPrefix = "SMOKEOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultInterval is the pause between the end of one cycle and the start
	// of the next in repeat mode.
	DefaultInterval = time.Hour

	// DefaultUploadPrefix is the S3 key prefix for uploaded cycle files.
	DefaultUploadPrefix = "results/cycles"

	// DefaultAPIListen is the default listen address for the status API.
	DefaultAPIListen = ":8080"

	// DefaultSQLitePath is the default database file for the result store.
	DefaultSQLitePath = "smokeoor.db"
)

// DefaultBackends are the backends tested when none are configured.
var DefaultBackends = []string{
	"https://backend.iobio.io",
	"https://mosaic.chpc.utah.edu/gru/api/v1",
	"https://mosaic.chpc.utah.edu/gru-dev",
}

// Config is the root configuration for smokeoor.
type Config struct {
	Global  GlobalConfig  `yaml:"global" mapstructure:"global"`
	Runner  RunnerConfig  `yaml:"runner" mapstructure:"runner"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Publish PublishConfig `yaml:"publish" mapstructure:"publish"`
	Upload  UploadConfig  `yaml:"upload" mapstructure:"upload"`
	API     APIConfig     `yaml:"api" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// RunnerConfig controls test discovery and the cycle loop.
type RunnerConfig struct {
	Path           string        `yaml:"path" mapstructure:"path"`
	Backends       []string      `yaml:"backends" mapstructure:"backends"`
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
	Repeat         string        `yaml:"repeat" mapstructure:"repeat"`
	StrictChecks   bool          `yaml:"strict_checks" mapstructure:"strict_checks"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	UserAgent      string        `yaml:"user_agent,omitempty" mapstructure:"user_agent"`
}

// OutputConfig controls the per-cycle JSONL results files.
type OutputConfig struct {
	ResultsDir   string `yaml:"results_dir,omitempty" mapstructure:"results_dir"`
	ResultsOwner string `yaml:"results_owner,omitempty" mapstructure:"results_owner"`
}

// StoreConfig contains result history database settings.
type StoreConfig struct {
	Enabled  bool                 `yaml:"enabled" mapstructure:"enabled"`
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// PublishConfig contains result publication settings.
type PublishConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig configures publishing record lines to Redis.
type RedisConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr          string `yaml:"addr" mapstructure:"addr"`
	Password      string `yaml:"password,omitempty" mapstructure:"password"`
	DB            int    `yaml:"db" mapstructure:"db"`
	Channel       string `yaml:"channel,omitempty" mapstructure:"channel"`
	List          string `yaml:"list,omitempty" mapstructure:"list"`
	MaxListLength int64  `yaml:"max_list_length,omitempty" mapstructure:"max_list_length"`
}

// UploadConfig contains results file upload settings.
type UploadConfig struct {
	S3 S3UploadConfig `yaml:"s3" mapstructure:"s3"`
}

// S3UploadConfig configures uploading cycle results files to S3.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// APIConfig contains status API server settings.
type APIConfig struct {
	Enabled     bool            `yaml:"enabled" mapstructure:"enabled"`
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
	Auth        APIAuthConfig   `yaml:"auth,omitempty" mapstructure:"auth"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings.
type APIAuthConfig struct {
	Basic BasicAuthConfig `yaml:"basic,omitempty" mapstructure:"basic"`
}

// BasicAuthConfig configures username/password authentication.
type BasicAuthConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	Users   []BasicAuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// BasicAuthUser is a user allowed to read the API. PasswordHash is a bcrypt
// hash.
type BasicAuthUser struct {
	Username     string `yaml:"username" mapstructure:"username"`
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash"`
}

// Load reads configuration from the given YAML files, later files merged
// over earlier ones, and applies SMOKEOOR_* environment overrides. With no
// files, defaults and environment variables are used.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for i, path := range paths {
		v.SetConfigFile(path)

		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}

		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so that environment overrides apply even
// when no config file mentions it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("runner.path", ".")
	v.SetDefault("runner.backends", DefaultBackends)
	v.SetDefault("runner.interval", DefaultInterval)
	v.SetDefault("runner.repeat", string(scheduler.ModeAuto))
	v.SetDefault("runner.strict_checks", false)
	v.SetDefault("runner.request_timeout", time.Duration(0))
	v.SetDefault("runner.user_agent", "")

	v.SetDefault("output.results_dir", "")
	v.SetDefault("output.results_owner", "")

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite.path", DefaultSQLitePath)
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.database", "smokeoor")
	v.SetDefault("store.postgres.ssl_mode", "disable")

	v.SetDefault("publish.redis.enabled", false)
	v.SetDefault("publish.redis.addr", "localhost:6379")
	v.SetDefault("publish.redis.password", "")
	v.SetDefault("publish.redis.db", 0)
	v.SetDefault("publish.redis.channel", "smokeoor:results")
	v.SetDefault("publish.redis.list", "")
	v.SetDefault("publish.redis.max_list_length", 0)

	v.SetDefault("upload.s3.enabled", false)
	v.SetDefault("upload.s3.endpoint_url", "")
	v.SetDefault("upload.s3.region", "us-east-1")
	v.SetDefault("upload.s3.bucket", "")
	v.SetDefault("upload.s3.access_key_id", "")
	v.SetDefault("upload.s3.secret_access_key", "")
	v.SetDefault("upload.s3.prefix", DefaultUploadPrefix)
	v.SetDefault("upload.s3.force_path_style", false)
	v.SetDefault("upload.s3.storage_class", "")
	v.SetDefault("upload.s3.acl", "")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.listen", DefaultAPIListen)
	v.SetDefault("api.cors_origins", []string{"*"})
	v.SetDefault("api.rate_limit.enabled", false)
	v.SetDefault("api.rate_limit.requests_per_minute", 60)
	v.SetDefault("api.auth.basic.enabled", false)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Runner.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}

	for i, backend := range c.Runner.Backends {
		if err := validateBackend(backend); err != nil {
			return fmt.Errorf("backend %d: %w", i, err)
		}
	}

	if c.Runner.Path == "" {
		return fmt.Errorf("runner.path is required")
	}

	if _, err := scheduler.ParseMode(c.Runner.Repeat); err != nil {
		return fmt.Errorf("runner.repeat: %w", err)
	}

	if c.Runner.Interval <= 0 {
		return fmt.Errorf("runner.interval must be positive, got %s", c.Runner.Interval)
	}

	if c.Runner.RequestTimeout < 0 {
		return fmt.Errorf("runner.request_timeout must not be negative")
	}

	if _, err := fsutil.ParseOwner(c.Output.ResultsOwner); err != nil {
		return fmt.Errorf("output.results_owner: %w", err)
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if c.Publish.Redis.Enabled {
		if c.Publish.Redis.Addr == "" {
			return fmt.Errorf("publish.redis.addr is required")
		}

		if c.Publish.Redis.Channel == "" && c.Publish.Redis.List == "" {
			return fmt.Errorf("publish.redis requires a channel or a list")
		}
	}

	if c.Upload.S3.Enabled {
		if c.Upload.S3.Bucket == "" {
			return fmt.Errorf("upload.s3.bucket is required")
		}

		if c.Output.ResultsDir == "" {
			return fmt.Errorf("upload.s3 requires output.results_dir")
		}
	}

	return c.validateAPI()
}

func (c *Config) validateStore() error {
	if !c.Store.Enabled {
		return nil
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required")
		}
	case "postgres":
		if c.Store.Postgres.Host == "" {
			return fmt.Errorf("store.postgres.host is required")
		}

		if c.Store.Postgres.Database == "" {
			return fmt.Errorf("store.postgres.database is required")
		}
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}

	return nil
}

func (c *Config) validateAPI() error {
	if !c.API.Enabled {
		return nil
	}

	if !c.Store.Enabled {
		return fmt.Errorf("api requires store.enabled")
	}

	if c.API.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}

	if c.API.RateLimit.Enabled && c.API.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("api.rate_limit.requests_per_minute must be positive")
	}

	if c.API.Auth.Basic.Enabled {
		if len(c.API.Auth.Basic.Users) == 0 {
			return fmt.Errorf("api.auth.basic requires at least one user")
		}

		for i, u := range c.API.Auth.Basic.Users {
			if u.Username == "" || u.PasswordHash == "" {
				return fmt.Errorf("api.auth.basic user %d: username and password_hash are required", i)
			}
		}
	}

	return nil
}

func validateBackend(backend string) error {
	u, err := url.Parse(backend)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", backend, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", backend)
	}

	if u.Host == "" {
		return fmt.Errorf("%q has no host", backend)
	}

	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	return out, nil
}
