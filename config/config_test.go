package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "designref.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	t.Setenv(HostRootEnv, "/home/dev/app")
	cfg := Default()

	if cfg.Compare.PassBand != 0.0017 {
		t.Errorf("PassBand = %v", cfg.Compare.PassBand)
	}
	if cfg.Compare.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", cfg.Compare.MaxRetries)
	}
	if cfg.Compare.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v", cfg.Compare.RetryDelay)
	}
	if cfg.Browser.Window != (WindowConfig{Width: 1400, Height: 1024}) {
		t.Errorf("Window = %+v", cfg.Browser.Window)
	}
	if cfg.Compare.BaselineDir != "design_reference" {
		t.Errorf("BaselineDir = %q", cfg.Compare.BaselineDir)
	}
	if cfg.HostRoot != "/home/dev/app" {
		t.Errorf("HostRoot = %q", cfg.HostRoot)
	}
	if !filepath.IsAbs(cfg.Root) {
		t.Errorf("Root %q should be absolute", cfg.Root)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
root: app
base_url: http://web:8080
tags: "@Screenshot && ~@wip"
browser:
  name: chrome-headful
  mode: headful
  block_resources: [media]
  block_urls: [google-analytics.com]
compare:
  engine: native
  max_retries: 2
  retry_delay: 250ms
report:
  user: qa
  password_hash: "$2a$10$abcdefghijklmnopqrstuu"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if want := filepath.Join(filepath.Dir(path), "app"); cfg.Root != want {
		t.Errorf("Root = %q, want %q", cfg.Root, want)
	}
	if cfg.BaseURL != "http://web:8080" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Browser.Mode != "headful" || cfg.Browser.Name != "chrome-headful" {
		t.Errorf("Browser = %+v", cfg.Browser)
	}
	if len(cfg.Browser.BlockResources) != 1 || cfg.Browser.BlockResources[0] != "media" {
		t.Errorf("BlockResources = %v", cfg.Browser.BlockResources)
	}
	if len(cfg.Browser.BlockURLs) != 1 || cfg.Browser.BlockURLs[0] != "google-analytics.com" {
		t.Errorf("BlockURLs = %v", cfg.Browser.BlockURLs)
	}
	if cfg.Compare.MaxRetries != 2 || cfg.Compare.RetryDelay != 250*time.Millisecond {
		t.Errorf("Compare = %+v", cfg.Compare)
	}
	if cfg.Compare.PassBand != 0.0017 {
		t.Errorf("PassBand default lost: %v", cfg.Compare.PassBand)
	}
	if got := cfg.Path("reporting/history.db"); got != filepath.Join(cfg.Root, "reporting/history.db") {
		t.Errorf("Path = %q", got)
	}
	if got := cfg.Path("/abs/x"); got != "/abs/x" {
		t.Errorf("Path(abs) = %q", got)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	cases := map[string]string{
		"engine":   "compare: {engine: opencv}",
		"mode":     "browser: {mode: kiosk}",
		"color":    "color: sometimes",
		"baseline": "compare: {baseline_dir: /srv/refs}",
		"auth":     "report: {user: qa}",
		"yaml":     "browser: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.HasPrefix(err.Error(), "config: ") {
				t.Errorf("error %q lacks package prefix", err)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
