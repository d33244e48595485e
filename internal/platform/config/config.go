package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Supabase  SupabaseConfig  `mapstructure:"supabase"`
	Site      SiteConfig      `mapstructure:"site"`
	Session   SessionConfig   `mapstructure:"session"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SupabaseConfig points at the hosted auth/REST/RPC backend.
type SupabaseConfig struct {
	URL       string        `mapstructure:"url"`
	AnonKey   string        `mapstructure:"anon_key"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SiteConfig struct {
	URL string `mapstructure:"url"`
}

type SessionConfig struct {
	CookiePrefix string        `mapstructure:"cookie_prefix"`
	Secure       bool          `mapstructure:"secure"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

// DatabaseConfig is the direct Postgres connection of the backend project.
// Only migrations and readiness checks use it.
type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type RateLimitConfig struct {
	Backend          string `mapstructure:"backend"`
	AuthPerMinute    int    `mapstructure:"auth_per_minute"`
	InvitesPerMinute int    `mapstructure:"invites_per_minute"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.anon_key", "")
	v.SetDefault("supabase.jwt_secret", "")
	v.SetDefault("supabase.timeout", 10*time.Second)

	v.SetDefault("site.url", "")

	v.SetDefault("session.cookie_prefix", "sb")
	v.SetDefault("session.secure", false)
	// 400 days, the browser cap for cookie lifetimes.
	v.SetDefault("session.max_age", 400*24*time.Hour)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 5)

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.auth_per_minute", 20)
	v.SetDefault("rate_limit.invites_per_minute", 30)

	v.SetDefault("redis.url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
}

// Load reads the YAML file at path when it exists and overlays environment
// variables (SUPABASE_URL, SITE_URL, ...). A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.RateLimit.Backend {
	case "memory", "":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("rate_limit.backend is redis but redis.url is empty")
		}
	default:
		return fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
