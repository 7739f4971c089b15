package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const dirName = ".gymthreads"

type Config struct {
	Version       int               `json:"version"`
	DefaultServer string            `json:"default_server"`
	Servers       map[string]Server `json:"servers"`
	// StoragePath overrides where session state is kept.
	StoragePath string            `json:"storage_path,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

type Server struct {
	URL         string `json:"url"`
	UID         string `json:"uid,omitempty"`
	ConnectedAt string `json:"connected_at"`
}

// Path returns the nearest .gymthreads/config.json above the working
// directory, falling back to the one in the home directory.
func Path() (string, error) {
	if wd, err := os.Getwd(); err == nil {
		for dir := wd; ; {
			p := filepath.Join(dir, dirName, "config.json")
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dirName, "config.json"), nil
}

func defaults() *Config {
	return &Config{
		Version:       1,
		DefaultServer: "main",
		Servers:       map[string]Server{},
		Preferences: map[string]string{
			"default_format": "table",
			"watch_interval": "30s",
		},
	}
}

func Load() (*Config, error) {
	p, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(p)
}

func LoadFromPath(p string) (*Config, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.Servers == nil {
		c.Servers = map[string]Server{}
	}
	if c.DefaultServer == "" {
		c.DefaultServer = "main"
	}
	if c.Version == 0 {
		c.Version = 1
	}
	return &c, nil
}

func Save(c *Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	return SaveToPath(c, p)
}

func SaveToPath(c *Config, p string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, append(b, '\n'), 0o600)
}

func (c *Config) SetDefault(url, uid string) {
	if c.Servers == nil {
		c.Servers = map[string]Server{}
	}
	c.Servers["main"] = Server{
		URL:         strings.TrimRight(url, "/"),
		UID:         uid,
		ConnectedAt: time.Now().UTC().Format(time.RFC3339),
	}
	c.DefaultServer = "main"
}

func (c *Config) ClearDefault() {
	delete(c.Servers, c.DefaultServer)
}

func (c *Config) Default() (Server, bool) {
	s, ok := c.Servers[c.DefaultServer]
	return s, ok
}

// Settings is the effective runtime configuration after environment
// overrides.
type Settings struct {
	URL         string
	Token       string
	StoragePath string
	LogLevel    string
	Format      string
	Watch       time.Duration
}

// LoadEnv reads a .env file from the working directory when present.
// Variables already set in the environment win.
func LoadEnv() error {
	err := godotenv.Load()
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Resolve merges c with GYMTHREADS_* environment variables. configPath
// anchors the default storage location next to the config file.
func (c *Config) Resolve(configPath string) Settings {
	s := Settings{
		LogLevel: "info",
		Format:   c.Preferences["default_format"],
		Watch:    30 * time.Second,
	}
	if srv, ok := c.Default(); ok {
		s.URL = srv.URL
	}
	if d, err := time.ParseDuration(c.Preferences["watch_interval"]); err == nil && d > 0 {
		s.Watch = d
	}
	s.StoragePath = c.StoragePath
	if s.StoragePath == "" {
		s.StoragePath = filepath.Join(filepath.Dir(configPath), "state.db")
	}
	if v := strings.TrimSpace(os.Getenv("GYMTHREADS_URL")); v != "" {
		s.URL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("GYMTHREADS_TOKEN")); v != "" {
		s.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("GYMTHREADS_DB")); v != "" {
		s.StoragePath = v
	}
	if v := strings.TrimSpace(os.Getenv("GYMTHREADS_LOG_LEVEL")); v != "" {
		s.LogLevel = v
	}
	return s
}
