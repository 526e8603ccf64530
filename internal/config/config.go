package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultModel       = "gpt-5-mini"
	DefaultListenAddr  = "127.0.0.1:8080"
	DefaultRelayURL    = "http://127.0.0.1:8080/"
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 3000
	DefaultProfileName = "default"

	defaultRequestTimeout = 120
	defaultConnectTimeout = 10
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile holds the upstream credentials and model for one account.
type Profile struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

type Auth struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Server configures the relay listener and the client's retry loop.
type Server struct {
	ListenAddr      string `json:"listen_addr"`
	RelayURL        string `json:"relay_url"`
	MaxAttempts     int    `json:"max_attempts"`
	RetryDelayMs    int    `json:"retry_delay_ms"`
	RequestTimeoutS int    `json:"request_timeout_s"`
	ConnectTimeoutS int    `json:"connect_timeout_s"`
	Auth            Auth   `json:"auth"`
}

type Config struct {
	Profiles      map[string]Profile `json:"profiles"`
	ActiveProfile string             `json:"active_profile"`
	Server        Server             `json:"server"`

	path           string
	currentProfile *Profile
	listenOverride string
}

// LoadConfig reads the config file under the config home, creating a
// default one if it does not exist yet, and applies environment overrides.
func LoadConfig() (*Config, error) {
	dir, err := getConfigDir()
	if err != nil {
		return nil, err
	}
	if err := ensureConfigDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	return LoadConfigFrom(filepath.Join(dir, "config.json"))
}

// LoadConfigFrom is LoadConfig with an explicit file path.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := &Config{path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.createDefaultConfig()
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	} else if err := cfg.loadConfigFile(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.setCurrentProfile(); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadDotEnv loads .env from the working directory. Variables already set in
// the environment win.
func LoadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func getConfigDir() (string, error) {
	if home := os.Getenv("PROMPTMACHINE_HOME"); home != "" {
		return home, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".promptmachine"), nil
}

func ensureConfigDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func (c *Config) loadConfigFile() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) createDefaultConfig() {
	c.Profiles = map[string]Profile{
		DefaultProfileName: {Model: DefaultModel},
	}
	c.ActiveProfile = DefaultProfileName
}

func (c *Config) applyDefaults() {
	if c.Profiles == nil {
		c.Profiles = make(map[string]Profile)
	}
	if c.ActiveProfile == "" {
		c.ActiveProfile = DefaultProfileName
	}
	if _, ok := c.Profiles[c.ActiveProfile]; !ok && c.ActiveProfile == DefaultProfileName {
		c.Profiles[DefaultProfileName] = Profile{Model: DefaultModel}
	}

	s := &c.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.RelayURL == "" {
		s.RelayURL = DefaultRelayURL
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.RetryDelayMs <= 0 {
		s.RetryDelayMs = DefaultRetryDelay
	}
	if s.RequestTimeoutS <= 0 {
		s.RequestTimeoutS = defaultRequestTimeout
	}
	if s.ConnectTimeoutS <= 0 {
		s.ConnectTimeoutS = defaultConnectTimeout
	}
}

// applyEnv overrides the in-memory copy of the active profile. Overrides are
// never written back by Save.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.currentProfile.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.currentProfile.BaseURL = v
	}
	if v := os.Getenv("PROMPTMACHINE_MODEL"); v != "" {
		c.currentProfile.Model = v
	}
	c.listenOverride = os.Getenv("PROMPTMACHINE_LISTEN")
}

func (c *Config) setCurrentProfile() error {
	profile, ok := c.Profiles[c.ActiveProfile]
	if !ok {
		return fmt.Errorf("active profile %q: %w", c.ActiveProfile, ErrProfileNotFound)
	}
	c.currentProfile = &profile
	return nil
}

// Save writes the profiles and server block with owner-only permissions.
func (c *Config) Save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SwitchProfile makes name the active profile. It does not save.
func (c *Config) SwitchProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("profile %q: %w", name, ErrProfileNotFound)
	}
	c.ActiveProfile = name
	return c.setCurrentProfile()
}

// RemoveProfile deletes a profile. Removing the active one activates another
// profile, or a fresh default when it was the last.
func (c *Config) RemoveProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("profile %q: %w", name, ErrProfileNotFound)
	}
	delete(c.Profiles, name)
	if c.ActiveProfile != name {
		return nil
	}
	for other := range c.Profiles {
		c.ActiveProfile = other
		return c.setCurrentProfile()
	}
	c.createDefaultConfig()
	return c.setCurrentProfile()
}

func (c *Config) Path() string {
	return c.path
}

func (c *Config) IsValid() bool {
	return c.currentProfile != nil && c.currentProfile.APIKey != ""
}

func (c *Config) GetAPIKey() string {
	if c.currentProfile == nil {
		return ""
	}
	return c.currentProfile.APIKey
}

func (c *Config) GetModel() string {
	if c.currentProfile == nil || c.currentProfile.Model == "" {
		return DefaultModel
	}
	return c.currentProfile.Model
}

func (c *Config) GetBaseURL() string {
	if c.currentProfile == nil || c.currentProfile.BaseURL == "" {
		return openai.DefaultConfig("").BaseURL
	}
	return c.currentProfile.BaseURL
}

func (c *Config) ListenAddr() string {
	if c.listenOverride != "" {
		return c.listenOverride
	}
	return c.Server.ListenAddr
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Server.RetryDelayMs) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutS) * time.Second
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Server.ConnectTimeoutS) * time.Second
}
