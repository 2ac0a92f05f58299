package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func TestBlockList(t *testing.T) {
	bl := newBlockList([]string{"media", "Fonts", " xhr ", ""}, []string{"google-analytics.com", " ", "/ads/"})
	tests := []struct {
		name string
		rt   proto.NetworkResourceType
		url  string
		want bool
	}{
		{"media by type", proto.NetworkResourceTypeMedia, "https://app.test/intro.mp4", true},
		{"plural font", proto.NetworkResourceTypeFont, "https://app.test/a.woff2", true},
		{"cdp spelling", proto.NetworkResourceType("XHR"), "https://app.test/api", true},
		{"image allowed", proto.NetworkResourceTypeImage, "https://app.test/logo.png", false},
		{"stylesheet allowed", proto.NetworkResourceTypeStylesheet, "https://app.test/app.css", false},
		{"url fragment", proto.NetworkResourceTypeScript, "https://www.google-analytics.com/analytics.js", true},
		{"url path fragment", proto.NetworkResourceTypeImage, "https://cdn.test/ads/banner.png", true},
		{"document never blocked", proto.NetworkResourceTypeDocument, "https://app.test/ads/landing", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bl.blocks(tt.rt, tt.url); got != tt.want {
				t.Errorf("blocks(%q, %q) = %v, want %v", tt.rt, tt.url, got, tt.want)
			}
		})
	}
}

func TestBlockList_Empty(t *testing.T) {
	if !newBlockList(nil, []string{"", "  "}).empty() {
		t.Error("blank entries should leave the list empty")
	}
	if newBlockList([]string{"images"}, nil).empty() {
		t.Error("type entry should make the list non-empty")
	}
}

func TestXvfbArgs(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		screen        string
	}{
		{"unset window", 0, 0, "1920x1080x24"},
		{"small window", 1400, 1024, "1920x1080x24"},
		{"large window", 2560, 1440, "2560x1440x24"},
		{"tall window", 800, 3000, "1920x3000x24"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := xvfbArgs(":42", tt.width, tt.height)
			if args[0] != ":42" || args[3] != tt.screen {
				t.Fatalf("xvfbArgs = %v, want display :42 and screen %s", args, tt.screen)
			}
		})
	}
}

func TestDisplaySocket(t *testing.T) {
	tests := []struct {
		display string
		want    string
		wantErr bool
	}{
		{":99", filepath.Join(x11SocketDir, "X99"), false},
		{":1.0", filepath.Join(x11SocketDir, "X1"), false},
		{"99", "", true},
		{":", "", true},
		{":x", "", true},
	}
	for _, tt := range tests {
		got, err := displaySocket(tt.display)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("displaySocket(%q) = %q, %v", tt.display, got, err)
		}
	}
}

func TestWaitForSocket(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "X7")

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(sock, nil, 0o600)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := waitForSocket(ctx, sock, make(chan error)); err != nil {
		t.Fatalf("waitForSocket: %v", err)
	}

	exited := make(chan error, 1)
	exited <- errors.New("exit status 1")
	if err := waitForSocket(ctx, filepath.Join(dir, "X8"), exited); err == nil {
		t.Fatal("expected error when the server exits first")
	}

	short, cancelShort := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancelShort()
	if err := waitForSocket(short, filepath.Join(dir, "X9"), make(chan error)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("waitForSocket timeout: got %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	m := NewManager(Config{})
	if m.Name() != "chrome" {
		t.Errorf("Name = %q, want chrome", m.Name())
	}
	if m.cfg.XvfbDisplay != ":99" {
		t.Errorf("XvfbDisplay = %q", m.cfg.XvfbDisplay)
	}
	if m.cfg.XvfbTimeout != 10*time.Second {
		t.Errorf("XvfbTimeout = %v", m.cfg.XvfbTimeout)
	}
	if m.cfg.Logger == nil {
		t.Error("Logger not defaulted")
	}

	m = NewManager(Config{Name: "firefox"})
	if m.Name() != "firefox" {
		t.Errorf("Name = %q, want firefox", m.Name())
	}
}

func TestManager_ClosedRefusesStart(t *testing.T) {
	m := NewManager(Config{})
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start(context.Background()); err == nil {
		t.Fatal("Start after Close should fail")
	}
	if m.Browser() != nil {
		t.Error("Browser should be nil after Close")
	}
}

func TestOpenTab_NoBrowser(t *testing.T) {
	if _, err := OpenTab(context.Background(), NewManager(Config{})); err == nil {
		t.Fatal("OpenTab without Start should fail")
	}
}
