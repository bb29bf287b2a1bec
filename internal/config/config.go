package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "SWAPCIRCLE"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseDriver    = DriverSQLite
	defaultDatabasePath      = "swapcircle.db"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultIssuer            = "swapcircle-auth"
	defaultCookieName        = "swapcircle_session"
	defaultTokenTTLMinutes   = 60
	defaultBarterCodeLength  = 6
	defaultBarterAttempts    = 3
	defaultCommunityCodeLen  = 6
	defaultHeartbeatSeconds  = 25
	defaultRedisChannel      = "swapcircle:realtime"
	defaultAllowedOrigin     = "*"
	defaultRedisDatabase     = 0
	defaultDatabaseMaxConns  = 10
	defaultDatabaseIdleConns = 5

	// Codes are stored in size:16 columns.
	minCodeLength = 6
	maxCodeLength = 16
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
	Database       DatabaseConfig
	Auth           AuthConfig
	Barter         BarterConfig
	Community      CommunityConfig
	Realtime       RealtimeConfig
	Redis          RedisConfig
}

type DatabaseConfig struct {
	Driver       string
	DSN          string
	Path         string
	MaxOpenConns int
	MaxIdleConns int
}

type AuthConfig struct {
	SigningSecret string
	Issuer        string
	CookieName    string
	TokenTTL      time.Duration
}

type BarterConfig struct {
	CodeLength  int
	MaxAttempts int
}

type CommunityConfig struct {
	CodeLength int
}

type RealtimeConfig struct {
	Heartbeat time.Duration
}

// RedisConfig enables the cross-instance realtime bridge when Address is set.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Address) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", defaultAllowedOrigin)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("database.max_open_conns", defaultDatabaseMaxConns)
	configViper.SetDefault("database.max_idle_conns", defaultDatabaseIdleConns)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("barter.code_length", defaultBarterCodeLength)
	configViper.SetDefault("barter.max_attempts", defaultBarterAttempts)
	configViper.SetDefault("community.code_length", defaultCommunityCodeLen)
	configViper.SetDefault("realtime.heartbeat_seconds", defaultHeartbeatSeconds)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.password", "")
	configViper.SetDefault("redis.db", defaultRedisDatabase)
	configViper.SetDefault("redis.channel", defaultRedisChannel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		AllowedOrigins: splitList(configViper.GetString("http.allowed_origins")),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		Database: DatabaseConfig{
			Driver:       strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
			DSN:          configViper.GetString("database.dsn"),
			Path:         configViper.GetString("database.path"),
			MaxOpenConns: configViper.GetInt("database.max_open_conns"),
			MaxIdleConns: configViper.GetInt("database.max_idle_conns"),
		},
		Auth: AuthConfig{
			SigningSecret: configViper.GetString("auth.signing_secret"),
			Issuer:        configViper.GetString("auth.issuer"),
			CookieName:    configViper.GetString("auth.cookie_name"),
			TokenTTL:      time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		},
		Barter: BarterConfig{
			CodeLength:  configViper.GetInt("barter.code_length"),
			MaxAttempts: configViper.GetInt("barter.max_attempts"),
		},
		Community: CommunityConfig{
			CodeLength: configViper.GetInt("community.code_length"),
		},
		Realtime: RealtimeConfig{
			Heartbeat: time.Duration(configViper.GetInt("realtime.heartbeat_seconds")) * time.Second,
		},
		Redis: RedisConfig{
			Address:  configViper.GetString("redis.address"),
			Password: configViper.GetString("redis.password"),
			DB:       configViper.GetInt("redis.db"),
			Channel:  configViper.GetString("redis.channel"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.Auth.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.Auth.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverPostgres, DriverMySQL:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q is not supported", c.LogFormat)
	}
	if c.Barter.CodeLength < minCodeLength || c.Barter.CodeLength > maxCodeLength {
		return fmt.Errorf("barter.code_length must be between %d and %d", minCodeLength, maxCodeLength)
	}
	if c.Community.CodeLength < minCodeLength || c.Community.CodeLength > maxCodeLength {
		return fmt.Errorf("community.code_length must be between %d and %d", minCodeLength, maxCodeLength)
	}
	if c.Barter.MaxAttempts <= 0 {
		return fmt.Errorf("barter.max_attempts must be positive")
	}
	if c.Realtime.Heartbeat <= 0 {
		return fmt.Errorf("realtime.heartbeat_seconds must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
