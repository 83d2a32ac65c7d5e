package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sigs.k8s.io/yaml"
)

const appName = "orgctl"

// ClientSecretEnvKey overrides the directory client secret from the
// environment so it can stay out of the config file.
const ClientSecretEnvKey = "ORGCTL_DIRECTORY_CLIENT_SECRET"

type Config struct {
	Service   *svcConfig       `json:"service,omitempty"`
	Directory *directoryConfig `json:"directory,omitempty"`
	Cache     *cacheConfig     `json:"cache,omitempty"`
	Access    *accessConfig    `json:"access,omitempty"`
}

type svcConfig struct {
	Address  string `json:"address,omitempty"`
	LogLevel string `json:"logLevel,omitempty"`
	// RateLimit is requests per minute per client IP; zero disables it.
	RateLimit int `json:"rateLimit,omitempty"`
}

type directoryConfig struct {
	// Endpoint is the identity tenant base URL, e.g.
	// https://tenant.logto.app.
	Endpoint     string `json:"endpoint,omitempty"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	// Resource is the management API resource indicator; defaults to
	// <endpoint>/api.
	Resource       string `json:"resource,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

type cacheConfig struct {
	TTLSeconds int `json:"ttlSeconds,omitempty"`
}

type accessConfig struct {
	// ScanLimit caps concurrent directory lookups during catalog-wide
	// membership scans.
	ScanLimit int `json:"scanLimit,omitempty"`
}

func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, "."+appName)
}

func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func NewDefault() *Config {
	return &Config{
		Service: &svcConfig{
			Address:   ":3001",
			LogLevel:  "info",
			RateLimit: 300,
		},
		Directory: &directoryConfig{
			TimeoutSeconds: 15,
		},
		Cache: &cacheConfig{
			TTLSeconds: 300,
		},
		Access: &accessConfig{
			ScanLimit: 4,
		},
	}
}

// Load reads and validates the config file at path, applying defaults for
// absent sections and the environment override for the client secret.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg := NewDefault()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrGenerate loads the config file, writing the defaults first when it
// does not exist yet.
func LoadOrGenerate(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(NewDefault(), path); err != nil {
			return nil, err
		}
	}
	return Load(path)
}

func Save(cfg *Config, path string) error {
	contents, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if secret := os.Getenv(ClientSecretEnvKey); secret != "" {
		if c.Directory == nil {
			c.Directory = &directoryConfig{}
		}
		c.Directory.ClientSecret = secret
	}
}

func (c *Config) Validate() error {
	if c.Service == nil || c.Service.Address == "" {
		return fmt.Errorf("service.address is required")
	}
	if c.Directory == nil || c.Directory.Endpoint == "" {
		return fmt.Errorf("directory.endpoint is required")
	}
	return nil
}

// DirectoryTimeout returns the configured per-call directory timeout.
func (c *Config) DirectoryTimeout() time.Duration {
	if c.Directory == nil || c.Directory.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Directory.TimeoutSeconds) * time.Second
}

// CacheTTL returns the configured resolver cache TTL.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache == nil || c.Cache.TTLSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// ScanLimit returns the configured catalog-scan concurrency cap.
func (c *Config) ScanLimit() int {
	if c.Access == nil || c.Access.ScanLimit <= 0 {
		return 4
	}
	return c.Access.ScanLimit
}

// String renders the config for startup logging with the client secret
// redacted.
func (c *Config) String() string {
	redacted := *c
	if c.Directory != nil {
		dir := *c.Directory
		if dir.ClientSecret != "" {
			dir.ClientSecret = "[redacted]"
		}
		redacted.Directory = &dir
	}
	contents, err := yaml.Marshal(&redacted)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}
