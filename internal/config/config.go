package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration model.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Twitter TwitterConfig `yaml:"twitter"`
	Session SessionConfig `yaml:"session"`
	Cache   CacheConfig   `yaml:"cache"`
	Limits  LimitsConfig  `yaml:"limits"`
}

type ServerConfig struct {
	// Listen address, e.g., ":3155".
	Addr string `yaml:"addr"`
	// Directory of static files served at /.
	PublicDir string `yaml:"publicDir"`
	// Optional Prometheus listener, e.g., ":9090". Empty disables it.
	MetricsAddr string `yaml:"metricsAddr"`
	// Set when the deployment terminates TLS; marks cookies Secure.
	SecureCookies bool `yaml:"secureCookies"`
}

type TwitterConfig struct {
	// OAuth app credentials. If empty, read from env TWITTER_CLIENT /
	// TWITTER_CLIENT_SECRET / TWITTER_CALLBACK_URL.
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	CallbackURL  string `yaml:"callbackUrl"`
	// API base override, used by tests. Default https://api.twitter.com/2.
	APIBaseURL string `yaml:"apiBaseUrl"`
}

type SessionConfig struct {
	// SQLite path for session rows; ":memory:" keeps them in-process.
	DBPath string `yaml:"dbPath"`
	// Session lifetime in seconds. Default 86400.
	TTLSeconds int `yaml:"ttlSeconds"`
}

type CacheConfig struct {
	// Result freshness window in seconds. Default 600.
	TTLSeconds int `yaml:"ttlSeconds"`
}

type LimitsConfig struct {
	// Most recent tweets analyzed per run.
	MaxTweets int `yaml:"maxTweets"`
	// Ranked entries returned.
	TopN int `yaml:"topN"`
	// Requests allowed on /analyze-interactions per client per window.
	RateLimitRequests int `yaml:"rateLimitRequests"`
	RateLimitWindowS  int `yaml:"rateLimitWindowSeconds"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Server:  ServerConfig{Addr: ":3155", PublicDir: "./public"},
		Twitter: TwitterConfig{},
		Session: SessionConfig{DBPath: "./truefriends.db", TTLSeconds: 86400},
		Cache:   CacheConfig{TTLSeconds: 600},
		Limits: LimitsConfig{
			MaxTweets:         100,
			TopN:              10,
			RateLimitRequests: 100,
			RateLimitWindowS:  15 * 60,
		},
	}
}

// ResolveEnv fills in config fields from environment variables if not
// set in the file.
func (c *Config) ResolveEnv() {
	if c.Twitter.ClientID == "" {
		c.Twitter.ClientID = os.Getenv("TWITTER_CLIENT")
	}
	if c.Twitter.ClientSecret == "" {
		c.Twitter.ClientSecret = os.Getenv("TWITTER_CLIENT_SECRET")
	}
	if c.Twitter.CallbackURL == "" {
		c.Twitter.CallbackURL = os.Getenv("TWITTER_CALLBACK_URL")
	}
	if c.Server.Addr == "" || c.Server.Addr == ":3155" {
		if p := os.Getenv("PORT"); p != "" {
			c.Server.Addr = ":" + p
		}
	}
	if c.Session.DBPath == "" {
		c.Session.DBPath = os.Getenv("SESSION_DB")
	}
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
