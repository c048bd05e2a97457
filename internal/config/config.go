package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration. Values come from an optional YAML
// file plus BOOKKEEPER_* environment variables; the environment wins.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Identity IdentityConfig `mapstructure:"identity"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	// DSN empty means the in-memory store; set it for durable deployments.
	DSN           string `mapstructure:"dsn"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type IdentityConfig struct {
	// AdminSubjects is the closed list of administrator identities. Admin
	// status never comes from tokens.
	AdminSubjects []string `mapstructure:"admin_subjects"`
	// Groups is a static subject -> group subjects mapping used when no
	// database-backed membership source is available.
	Groups map[string][]string `mapstructure:"groups"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.max_body_bytes", int64(1<<20))
	v.SetDefault("server.rate_limit_rps", 50.0)
	v.SetDefault("server.rate_limit_burst", 100)
	v.SetDefault("database.migrations_dir", "migrations")
	v.SetDefault("auth.issuer", "bookkeeper")
	v.SetDefault("auth.token_ttl", time.Hour)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Keys without defaults are invisible to Unmarshal when set only through
	// the environment; fill them from the live keyspace.
	if len(cfg.Identity.AdminSubjects) == 0 {
		cfg.Identity.AdminSubjects = v.GetStringSlice("identity.admin_subjects")
	}
	if cfg.Auth.Secret == "" {
		cfg.Auth.Secret = v.GetString("auth.secret")
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = v.GetString("database.dsn")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("auth.secret is required (BOOKKEEPER_AUTH_SECRET)")
	}
	if len(c.Identity.AdminSubjects) == 0 {
		return fmt.Errorf("identity.admin_subjects must list at least one administrator")
	}
	return nil
}
