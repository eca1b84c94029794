// Package config builds the daemon configuration once at startup from
// defaults, an optional config file, a .env file, the environment and flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/h1v3-io/frontdesk/internal/intake"
	"github.com/h1v3-io/frontdesk/internal/logbuf"
	"github.com/h1v3-io/frontdesk/internal/store"
	"github.com/h1v3-io/frontdesk/internal/voice"
)

// Config is the top-level frontdesk configuration.
type Config struct {
	HTTP    HTTPConfig
	Store   StoreConfig
	Timeout TimeoutConfig
	Voice   VoiceConfig
	Notify  NotifyConfig
	Intake  intake.Config
	KB      KBConfig
	Log     LogConfig
}

// HTTPConfig holds HTTP server settings. An empty AdminKey leaves the admin
// routes open.
type HTTPConfig struct {
	Host         string
	Port         int
	AdminKey     string
	AdminHistory int // closed requests listed on /admin; 0 lists all
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig selects the database.
type StoreConfig struct {
	Driver string // sqlite or postgres
	DSN    string // file path for sqlite, connection string for postgres
}

// TimeoutConfig controls the timeout sweep.
type TimeoutConfig struct {
	PollInterval time.Duration
	Threshold    time.Duration
}

// VoiceConfig holds external room service settings. Credentials are only
// required when Enabled is set.
type VoiceConfig struct {
	Enabled        bool
	URL            string
	APIKey         string
	APISecret      string
	EmptyTimeout   time.Duration
	TokenTTL       time.Duration
	JoinRetries    int
	JoinRetryDelay time.Duration
	QueueSize      int
}

// Backend returns the room service client settings.
func (c VoiceConfig) Backend() voice.Config {
	return voice.Config{
		URL:          c.URL,
		APIKey:       c.APIKey,
		APISecret:    c.APISecret,
		EmptyTimeout: c.EmptyTimeout,
		TokenTTL:     c.TokenTTL,
	}
}

// Validate fails when voice is enabled but credentials are missing.
func (c VoiceConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := c.Backend().Validate(); err != nil {
		return fmt.Errorf("config: %w (set them or run with --voice=false)", err)
	}
	return nil
}

// NotifyConfig holds notification sinks.
type NotifyConfig struct {
	SlackWebhookURL string
}

// KBConfig holds knowledge base settings.
type KBConfig struct {
	SeedFile string // YAML list of {question, answer}; empty uses built-in entries
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string
	BufferSize int
}

// Options tell Load where to look besides the environment.
type Options struct {
	File    string         // optional YAML/JSON/TOML config file
	EnvFile string         // .env file; missing is not an error
	Flags   *pflag.FlagSet // parsed flags registered with RegisterFlags
}

// env maps config keys to environment variables.
var env = map[string]string{
	"http.host":              "FRONTDESK_HTTP_HOST",
	"http.port":              "FRONTDESK_HTTP_PORT",
	"http.admin_key":         "FRONTDESK_ADMIN_KEY",
	"http.admin_history":     "FRONTDESK_ADMIN_HISTORY",
	"store.driver":           "FRONTDESK_DB_DRIVER",
	"store.dsn":              "FRONTDESK_DB_DSN",
	"timeout.poll_interval":  "FRONTDESK_POLL_INTERVAL",
	"timeout.threshold":      "FRONTDESK_TIMEOUT_THRESHOLD",
	"voice.enabled":          "FRONTDESK_VOICE",
	"voice.url":              "LIVEKIT_URL",
	"voice.api_key":          "LIVEKIT_API_KEY",
	"voice.api_secret":       "LIVEKIT_API_SECRET",
	"voice.empty_timeout":    "FRONTDESK_VOICE_EMPTY_TIMEOUT",
	"voice.token_ttl":        "FRONTDESK_VOICE_TOKEN_TTL",
	"voice.join_retries":     "FRONTDESK_VOICE_JOIN_RETRIES",
	"voice.join_retry_delay": "FRONTDESK_VOICE_JOIN_RETRY_DELAY",
	"voice.queue_size":       "FRONTDESK_VOICE_QUEUE_SIZE",
	"notify.slack_webhook":   "FRONTDESK_SLACK_WEBHOOK_URL",
	"kb.seed_file":           "FRONTDESK_KB_SEED",
	"log.level":              "FRONTDESK_LOG_LEVEL",
	"log.buffer_size":        "FRONTDESK_LOG_BUFFER",
}

// flags maps flag names to config keys.
var flags = map[string]string{
	"host":              "http.host",
	"port":              "http.port",
	"db-driver":         "store.driver",
	"db":                "store.dsn",
	"poll-interval":     "timeout.poll_interval",
	"timeout-threshold": "timeout.threshold",
	"voice":             "voice.enabled",
	"kb-seed":           "kb.seed_file",
	"log-level":         "log.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.admin_history", 50)
	v.SetDefault("store.driver", store.DriverSQLite)
	v.SetDefault("store.dsn", "./frontdesk.db")
	v.SetDefault("timeout.poll_interval", 30*time.Second)
	v.SetDefault("timeout.threshold", 300*time.Second)
	v.SetDefault("voice.enabled", true)
	v.SetDefault("voice.empty_timeout", 30*time.Second)
	v.SetDefault("voice.token_ttl", time.Hour)
	v.SetDefault("voice.join_retries", 5)
	v.SetDefault("voice.join_retry_delay", 500*time.Millisecond)
	v.SetDefault("voice.queue_size", 64)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.buffer_size", logbuf.DefaultSize)
}

// RegisterFlags adds the daemon's config flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml, json or toml)")
	fs.String("env-file", ".env", "dotenv file loaded before reading the environment")
	fs.String("host", "0.0.0.0", "HTTP listen host")
	fs.Int("port", 8080, "HTTP listen port")
	fs.String("db-driver", store.DriverSQLite, "database driver (sqlite, postgres)")
	fs.String("db", "./frontdesk.db", "database file path or connection string")
	fs.Duration("poll-interval", 30*time.Second, "timeout sweep interval")
	fs.Duration("timeout-threshold", 300*time.Second, "age after which a pending request is marked unresolved")
	fs.Bool("voice", true, "enable voice rooms (requires LIVEKIT_* credentials)")
	fs.String("kb-seed", "", "YAML file seeding an empty knowledge base")
	fs.String("log-level", "info", "stdout log level (debug, info, warn, error)")
	fs.BoolP("verbose", "v", false, "shorthand for --log-level=debug")
}

// OptionsFromFlags reads --config and --env-file from fs.
func OptionsFromFlags(fs *pflag.FlagSet) Options {
	opts := Options{Flags: fs}
	opts.File, _ = fs.GetString("config")
	opts.EnvFile, _ = fs.GetString("env-file")
	return opts
}

// Load builds and validates a Config.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		// godotenv never overrides variables already in the environment.
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.File, err)
		}
	}

	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", name, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flags {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind --%s: %w", name, err)
				}
			}
		}
		if verbose, _ := opts.Flags.GetBool("verbose"); verbose {
			v.Set("log.level", "debug")
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Host:         v.GetString("http.host"),
			Port:         v.GetInt("http.port"),
			AdminKey:     v.GetString("http.admin_key"),
			AdminHistory: v.GetInt("http.admin_history"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(v.GetString("store.driver")),
			DSN:    v.GetString("store.dsn"),
		},
		Timeout: TimeoutConfig{
			PollInterval: v.GetDuration("timeout.poll_interval"),
			Threshold:    v.GetDuration("timeout.threshold"),
		},
		Voice: VoiceConfig{
			Enabled:        v.GetBool("voice.enabled"),
			URL:            v.GetString("voice.url"),
			APIKey:         v.GetString("voice.api_key"),
			APISecret:      v.GetString("voice.api_secret"),
			EmptyTimeout:   v.GetDuration("voice.empty_timeout"),
			TokenTTL:       v.GetDuration("voice.token_ttl"),
			JoinRetries:    v.GetInt("voice.join_retries"),
			JoinRetryDelay: v.GetDuration("voice.join_retry_delay"),
			QueueSize:      v.GetInt("voice.queue_size"),
		},
		Notify: NotifyConfig{
			SlackWebhookURL: v.GetString("notify.slack_webhook"),
		},
		KB: KBConfig{
			SeedFile: v.GetString("kb.seed_file"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			BufferSize: v.GetInt("log.buffer_size"),
		},
	}
	if err := v.UnmarshalKey("intake", &cfg.Intake); err != nil {
		return nil, fmt.Errorf("config: parse intake: %w", err)
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once. Voice
// credentials are checked separately by VoiceConfig.Validate.
func (c *Config) Validate() error {
	var errs []string

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port %d is out of range", c.HTTP.Port))
	}
	if c.HTTP.AdminHistory < 0 {
		errs = append(errs, "http.admin_history must not be negative")
	}
	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres", c.Store.Driver))
	}
	if c.Store.DSN == "" {
		errs = append(errs, "store.dsn is required")
	}
	if c.Timeout.PollInterval <= 0 {
		errs = append(errs, "timeout.poll_interval must be positive")
	}
	if c.Timeout.Threshold <= 0 {
		errs = append(errs, "timeout.threshold must be positive")
	}
	if c.Voice.JoinRetries < 0 {
		errs = append(errs, "voice.join_retries must not be negative")
	}
	if c.Voice.JoinRetryDelay <= 0 {
		errs = append(errs, "voice.join_retry_delay must be positive")
	}
	if _, err := logbuf.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	for name, ep := range c.Intake.Endpoints {
		if strings.ContainsAny(name, "/ ") || name == "" {
			errs = append(errs, fmt.Sprintf("intake.endpoints: invalid name %q", name))
		}
		if ep.Secret != "" && ep.BearerToken != "" {
			errs = append(errs, fmt.Sprintf("intake.endpoints.%s: set secret or bearer_token, not both", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
