package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	Log     LogConfig
	CRM     CRMConfig
	Session SessionConfig
	Token   TokenConfig
	Audit   AuditConfig
	Redis   RedisConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// CRMConfig holds the record-keeping system connection settings
type CRMConfig struct {
	InstanceURL        string        // shared service connection instance
	TokenURL           string        // OAuth token endpoint
	ClientID           string
	ClientSecret       string
	APIVersion         string        // REST API version segment, e.g. "v59.0"
	Timeout            time.Duration // client-side timeout per call
	FormObject         string        // object type holding form definitions
	TrackingObject     string        // object type for submission tracking records
	RelationshipObject string        // object type linking tracking to business records
	VerifyCreates      bool          // best-effort read-after-write verification
}

// SessionConfig holds form session store settings
type SessionConfig struct {
	Backend       string        // memory or redis
	TTL           time.Duration // fixed lifetime from creation, not sliding
	SweepInterval time.Duration
}

// TokenConfig holds OAuth token session settings
type TokenConfig struct {
	FilePath      string        // JSON collection file for persisted token sessions
	RefreshSkew   time.Duration // refresh this long before expiry
	IdleTTL       time.Duration // reclaim sessions idle longer than this
	SweepInterval time.Duration
}

// AuditConfig holds the append-only audit store settings
type AuditConfig struct {
	Driver        string // sqlite or postgres
	DSN           string
	Retention     time.Duration
	SweepInterval time.Duration
}

// RedisConfig holds Redis connection settings for the redis session backend
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address for the Redis client
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with FORMBRIDGE_ prefix (e.g. FORMBRIDGE_CRM_CLIENT_SECRET)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("FORMBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		CRM: CRMConfig{
			InstanceURL:        v.GetString("crm.instance_url"),
			TokenURL:           v.GetString("crm.token_url"),
			ClientID:           v.GetString("crm.client_id"),
			ClientSecret:       v.GetString("crm.client_secret"),
			APIVersion:         v.GetString("crm.api_version"),
			Timeout:            v.GetDuration("crm.timeout"),
			FormObject:         v.GetString("crm.form_object"),
			TrackingObject:     v.GetString("crm.tracking_object"),
			RelationshipObject: v.GetString("crm.relationship_object"),
			VerifyCreates:      v.GetBool("crm.verify_creates"),
		},
		Session: SessionConfig{
			Backend:       v.GetString("session.backend"),
			TTL:           v.GetDuration("session.ttl"),
			SweepInterval: v.GetDuration("session.sweep_interval"),
		},
		Token: TokenConfig{
			FilePath:      v.GetString("token.file_path"),
			RefreshSkew:   v.GetDuration("token.refresh_skew"),
			IdleTTL:       v.GetDuration("token.idle_ttl"),
			SweepInterval: v.GetDuration("token.sweep_interval"),
		},
		Audit: AuditConfig{
			Driver:        v.GetString("audit.driver"),
			DSN:           v.GetString("audit.dsn"),
			Retention:     v.GetDuration("audit.retention"),
			SweepInterval: v.GetDuration("audit.sweep_interval"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "formbridge-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.CRM.APIVersion == "" {
		cfg.CRM.APIVersion = "v59.0"
	}
	if cfg.CRM.Timeout == 0 {
		cfg.CRM.Timeout = 30 * time.Second
	}
	if cfg.CRM.FormObject == "" {
		cfg.CRM.FormObject = "WebForm__c"
	}
	if cfg.CRM.TrackingObject == "" {
		cfg.CRM.TrackingObject = "FormSubmission__c"
	}
	if cfg.CRM.RelationshipObject == "" {
		cfg.CRM.RelationshipObject = "FormSubmissionLink__c"
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = time.Hour
	}
	if cfg.Token.FilePath == "" {
		cfg.Token.FilePath = "token_sessions.json"
	}
	if cfg.Token.RefreshSkew == 0 {
		cfg.Token.RefreshSkew = 5 * time.Minute
	}
	if cfg.Token.IdleTTL == 0 {
		cfg.Token.IdleTTL = 24 * time.Hour
	}
	if cfg.Token.SweepInterval == 0 {
		cfg.Token.SweepInterval = time.Hour
	}
	if cfg.Audit.Driver == "" {
		cfg.Audit.Driver = "sqlite"
	}
	if cfg.Audit.DSN == "" {
		cfg.Audit.DSN = "audit.db"
	}
	if cfg.Audit.Retention == 0 {
		cfg.Audit.Retention = 24 * time.Hour
	}
	if cfg.Audit.SweepInterval == 0 {
		cfg.Audit.SweepInterval = time.Hour
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("session.backend must be memory or redis, got %q", c.Session.Backend)
	}
	switch c.Audit.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("audit.driver must be sqlite or postgres, got %q", c.Audit.Driver)
	}
	if c.CRM.Timeout < time.Second {
		return fmt.Errorf("crm.timeout must be at least 1s, got %s", c.CRM.Timeout)
	}

	if c.App.Env == "production" {
		if c.CRM.InstanceURL == "" {
			return fmt.Errorf("crm.instance_url is required in production")
		}
		if c.CRM.ClientID == "" || c.CRM.ClientSecret == "" {
			return fmt.Errorf("crm.client_id and crm.client_secret are required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	return nil
}
