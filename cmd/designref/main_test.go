package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_DefaultWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Compare.MaxRetries != 5 || cfg.Browser.Name != "chrome" {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	if err := os.WriteFile(filepath.Join(dir, defaultConfigFile), []byte("browser: {name: chromium}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig with file: %v", err)
	}
	if cfg.Browser.Name != "chromium" {
		t.Errorf("Browser.Name = %q, want chromium from %s", cfg.Browser.Name, defaultConfigFile)
	}
}

func TestRunReport_UnknownFormat(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "report: {history_db: h.db}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if err := runReport(context.Background(), cfg, "pdf", ""); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestRunReport_EmptyHistory(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "report: {history_db: reporting/h.db}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if err := runReport(context.Background(), cfg, "md", ""); err != nil {
		t.Fatalf("runReport: %v", err)
	}
	if _, err := os.Stat(cfg.Path("reporting/h.db")); err != nil {
		t.Errorf("history db not created: %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "designref.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
