package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Plex     PlexConfig     `toml:"plex"`
	Server   ServerConfig   `toml:"server"`
	Tickets  TicketsConfig  `toml:"tickets"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
}

// PlexConfig describes how to reach the upstream Plex Media Server.
type PlexConfig struct {
	BaseURL          string        `toml:"base_url" env:"PLEX_BASE_URL"`
	Token            string        `toml:"token" env:"PLEX_TOKEN"`
	ClientIdentifier string        `toml:"client_identifier" env:"PLEX_CLIENT_IDENTIFIER"`
	Product          string        `toml:"product" env:"PLEX_PRODUCT"`
	Timeout          time.Duration `toml:"timeout" env:"PLEX_TIMEOUT"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `toml:"host" env:"PLEXPROXY_HOST"`
	Port            int           `toml:"port" env:"PLEXPROXY_PORT"`
	StaticDir       string        `toml:"static_dir" env:"PLEXPROXY_STATIC_DIR"`
	AllowedOrigins  []string      `toml:"allowed_origins" env:"PLEXPROXY_ALLOWED_ORIGINS"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"PLEXPROXY_SHUTDOWN_TIMEOUT"`
}

// TicketsConfig controls ticket and recovery entry lifetimes.
type TicketsConfig struct {
	TTL           time.Duration `toml:"ttl" env:"PLEXPROXY_TICKET_TTL"`
	RecoveryTTL   time.Duration `toml:"recovery_ttl" env:"PLEXPROXY_RECOVERY_TTL"`
	SweepInterval time.Duration `toml:"sweep_interval" env:"PLEXPROXY_SWEEP_INTERVAL"`
}

// UpstreamConfig tunes calls made to the media server.
type UpstreamConfig struct {
	MetadataRPS float64 `toml:"metadata_rps" env:"PLEXPROXY_METADATA_RPS"`
}

// LogConfig sets the logger level.
type LogConfig struct {
	Level string `toml:"level" env:"PLEXPROXY_LOG_LEVEL"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment variables onto the config.
//
// A .env file in dotenvPath is loaded first when present; variables already set in the
// process environment win over the file.
func ApplyEnv(config *Config, dotenvPath string) error {
	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			if err := godotenv.Load(dotenvPath); err != nil {
				return fmt.Errorf("failed to load %s: %w", dotenvPath, err)
			}
		}
	}

	if err := env.Parse(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate reports whether the config can be used to serve traffic.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Plex.Token) == "" {
		errs = append(errs, fmt.Errorf("%w: plex.token", ErrMissingCredentials))
	}

	if u, err := url.Parse(strings.TrimSpace(c.Plex.BaseURL)); err != nil || u.Host == "" ||
		(u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("%w: plex.base_url %q", ErrInvalidConfig, c.Plex.BaseURL))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: server.port %d", ErrInvalidConfig, c.Server.Port))
	}

	if c.Tickets.TTL <= 0 {
		errs = append(errs, fmt.Errorf("%w: tickets.ttl must be positive", ErrInvalidConfig))
	}
	if c.Tickets.RecoveryTTL <= 0 {
		errs = append(errs, fmt.Errorf("%w: tickets.recovery_ttl must be positive", ErrInvalidConfig))
	}
	if c.Upstream.MetadataRPS < 0 {
		errs = append(errs, fmt.Errorf("%w: upstream.metadata_rps must not be negative", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// String renders the config for startup logs with the token masked.
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "plex.base_url=%s ", c.Plex.BaseURL)
	if c.Plex.Token != "" {
		sb.WriteString("plex.token=******** ")
	} else {
		sb.WriteString("plex.token=(empty) ")
	}
	fmt.Fprintf(&sb, "server.addr=%s ", c.Addr())
	fmt.Fprintf(&sb, "tickets.ttl=%s tickets.recovery_ttl=%s ", c.Tickets.TTL, c.Tickets.RecoveryTTL)
	fmt.Fprintf(&sb, "upstream.metadata_rps=%g log.level=%s", c.Upstream.MetadataRPS, c.Log.Level)
	return sb.String()
}
