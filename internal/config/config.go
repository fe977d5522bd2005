package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read from the environment, optionally seeded from a .env file.
type Config struct {
	ServerURL string
	Transport string

	ReconnectAttempts int
	ReconnectInterval time.Duration
	DialTimeout       time.Duration

	RouletteStart time.Duration
	RouletteStep  time.Duration
	RouletteMax   time.Duration

	Store         string
	StorePath     string
	StoreProfile  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string

	LogLevel string
	LogDev   bool

	DevAddr string
}

const (
	TransportCoder   = "coder"
	TransportGorilla = "gorilla"

	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Load reads .env files if present and then the process environment.
// Values already set in the environment win over the files.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}
	home, _ := os.UserHomeDir()

	c := Config{
		ServerURL:         p.str("OSHIRI_SERVER_URL", "http://localhost:8080"),
		Transport:         strings.ToLower(p.str("OSHIRI_TRANSPORT", TransportCoder)),
		ReconnectAttempts: p.integer("OSHIRI_RECONNECT_ATTEMPTS", 5),
		ReconnectInterval: p.dur("OSHIRI_RECONNECT_INTERVAL", time.Second),
		DialTimeout:       p.dur("OSHIRI_DIAL_TIMEOUT", 5*time.Second),
		RouletteStart:     p.dur("OSHIRI_ROULETTE_START", 10*time.Millisecond),
		RouletteStep:      p.dur("OSHIRI_ROULETTE_STEP", 2*time.Millisecond),
		RouletteMax:       p.dur("OSHIRI_ROULETTE_MAX", 10*time.Second),
		Store:             strings.ToLower(p.str("OSHIRI_STORE", StoreFile)),
		StorePath:         p.str("OSHIRI_STORE_PATH", filepath.Join(home, ".oshiri", "session.json")),
		StoreProfile:      p.str("OSHIRI_STORE_PROFILE", "default"),
		RedisAddr:         p.str("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     p.str("REDIS_PASSWORD", ""),
		RedisDB:           p.integer("REDIS_DB", 0),
		DatabaseURL:       p.str("OSHIRI_DATABASE_URL", ""),
		LogLevel:          strings.ToLower(p.str("OSHIRI_LOG_LEVEL", "info")),
		LogDev:            p.boolean("OSHIRI_LOG_DEV", false),
		DevAddr:           p.str("OSHIRI_DEV_ADDR", ":8080"),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("OSHIRI_SERVER_URL: want an http(s) URL, got %q", c.ServerURL)
	}
	switch c.Transport {
	case TransportCoder, TransportGorilla:
	default:
		return fmt.Errorf("OSHIRI_TRANSPORT: unknown transport %q", c.Transport)
	}
	switch c.Store {
	case StoreMemory, StoreFile, StoreRedis:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("OSHIRI_DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("OSHIRI_STORE: unknown store %q", c.Store)
	}
	if c.ReconnectAttempts < 0 {
		return errors.New("OSHIRI_RECONNECT_ATTEMPTS must not be negative")
	}
	if c.ReconnectInterval <= 0 || c.DialTimeout <= 0 || c.RouletteStart <= 0 {
		return errors.New("reconnect interval, dial timeout and roulette start must be positive")
	}
	return nil
}

// WebSocketURL turns the HTTP base into the game socket endpoint.
func (c Config) WebSocketURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return n
}

func (p *parser) dur(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return d
}

func (p *parser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return b
}
