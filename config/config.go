// Package config loads the designref YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// HostRootEnv names the environment variable holding the host-side path of
// Root when designref runs inside a container.
const HostRootEnv = "HOST_MACHINE_ROOT"

// Config is the top-level designref configuration.
type Config struct {
	Root        string        `yaml:"root"`
	BaseURL     string        `yaml:"base_url"`
	Features    []string      `yaml:"features"`
	Tags        string        `yaml:"tags"`
	PageObjects string        `yaml:"page_objects"`
	Browser     BrowserConfig `yaml:"browser"`
	Compare     CompareConfig `yaml:"compare"`
	Report      ReportConfig  `yaml:"report"`
	Color       string        `yaml:"color"` // auto | always | never

	// HostRoot is read from HOST_MACHINE_ROOT, never from the file.
	HostRoot string `yaml:"-"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Name           string       `yaml:"name"`
	Remote         string       `yaml:"remote"`
	Bin            string       `yaml:"bin"`
	Mode           string       `yaml:"mode"` // headless | headful
	Stealth        bool         `yaml:"stealth"`
	NoSandbox      bool         `yaml:"no_sandbox"`
	BlockResources []string     `yaml:"block_resources"`
	BlockURLs      []string     `yaml:"block_urls"`
	XvfbDisplay    string       `yaml:"xvfb_display"`
	Window         WindowConfig `yaml:"window"`
}

// WindowConfig is the window size applied to @Screenshot scenarios without
// a platform tag.
type WindowConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// CompareConfig tunes the comparison policy.
type CompareConfig struct {
	Engine      string        `yaml:"engine"` // auto | magick | native
	PassBand    float64       `yaml:"pass_band"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	TmpRoot     string        `yaml:"tmp_root"`
	BaselineDir string        `yaml:"baseline_dir"`
}

// ReportConfig controls failure screenshots, the history database and the
// report server.
type ReportConfig struct {
	Dir          string `yaml:"dir"`
	HistoryDB    string `yaml:"history_db"`
	Listen       string `yaml:"listen"`
	User         string `yaml:"user"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// Default returns a configuration with every default applied, rooted at
// the current directory.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file. A relative root is resolved
// against the directory holding the file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Root == "" {
		cfg.Root = "."
	}
	if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}
	cfg.applyDefaults()
	return &cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if abs, err := filepath.Abs(c.Root); err == nil {
		c.Root = abs
	}
	if c.HostRoot == "" {
		c.HostRoot = os.Getenv(HostRootEnv)
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:3000"
	}
	if len(c.Features) == 0 {
		c.Features = []string{"e2e/features"}
	}
	if c.PageObjects == "" {
		c.PageObjects = "e2e/page_objects.yaml"
	}
	if c.Color == "" {
		c.Color = "auto"
	}

	b := &c.Browser
	if b.Name == "" {
		b.Name = "chrome"
	}
	if b.Mode == "" {
		b.Mode = "headless"
	}
	if b.XvfbDisplay == "" {
		b.XvfbDisplay = ":99"
	}
	if b.Window.Width <= 0 {
		b.Window.Width = 1400
	}
	if b.Window.Height <= 0 {
		b.Window.Height = 1024
	}

	cp := &c.Compare
	if cp.Engine == "" {
		cp.Engine = "auto"
	}
	if cp.PassBand <= 0 {
		cp.PassBand = 0.0017
	}
	if cp.MaxRetries <= 0 {
		cp.MaxRetries = 5
	}
	if cp.RetryDelay <= 0 {
		cp.RetryDelay = time.Second
	}
	if cp.TmpRoot == "" {
		cp.TmpRoot = "/tmp"
	}
	if cp.BaselineDir == "" {
		cp.BaselineDir = "design_reference"
	}

	r := &c.Report
	if r.Dir == "" {
		r.Dir = "reporting/screenshots"
	}
	if r.HistoryDB == "" {
		r.HistoryDB = "reporting/history.db"
	}
	if r.Listen == "" {
		r.Listen = "127.0.0.1:8089"
	}
}

// Validate checks enumerations and cross-field constraints.
func (c *Config) Validate() error {
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.mode %q (use headless or headful)", c.Browser.Mode)
	}
	switch c.Compare.Engine {
	case "auto", "magick", "native":
	default:
		return fmt.Errorf("config: compare.engine %q (use auto, magick or native)", c.Compare.Engine)
	}
	switch c.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("config: color %q (use auto, always or never)", c.Color)
	}
	if filepath.IsAbs(c.Compare.BaselineDir) {
		return fmt.Errorf("config: compare.baseline_dir must be relative to root")
	}
	if (c.Report.User == "") != (c.Report.PasswordHash == "") {
		return fmt.Errorf("config: report.user and report.password_hash must be set together")
	}
	return nil
}

// Path resolves p against Root unless it is already absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}
