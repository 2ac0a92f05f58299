// Package browser drives Chrome through Rod for screenshot scenarios: launch
// (or connect to a remote instance), open the tab scenarios run in, and
// expose the capture and element-lookup primitives the verifier needs.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Mode controls whether Chrome renders to a real (virtual) display.
type Mode int

const (
	ModeHeadless Mode = iota // Chrome headless
	ModeHeadful              // Chrome on an Xvfb display
)

// Config configures the browser manager.
type Config struct {
	// Name is the browser identity baselines are keyed by. Default: "chrome".
	Name string

	// RemoteURL is the DevTools WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin is the Chrome executable. Empty = let launcher find or download one.
	Bin string

	Mode Mode

	// Stealth opens tabs through go-rod/stealth, for applications that gate
	// rendering on automation detection.
	Stealth bool

	// BlockResources lists resource types failed before they reach the
	// page: "images", "fonts", "media", "stylesheets", or any CDP type.
	BlockResources []string

	// BlockURLs fails requests whose URL contains any of these substrings
	// (analytics, chat widgets, ad slots).
	BlockURLs []string

	// NoSandbox disables the Chrome sandbox, needed when running as root in
	// a container.
	NoSandbox bool

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	// XvfbTimeout bounds the wait for the display socket. Default: 10s.
	XvfbTimeout time.Duration

	// WindowWidth and WindowHeight are the largest window scenarios ask
	// for; the Xvfb screen is sized to hold it.
	WindowWidth  int
	WindowHeight int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Name == "" {
		c.Name = "chrome"
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.XvfbTimeout <= 0 {
		c.XvfbTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process for one suite run.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool

	xvfb       *exec.Cmd
	xvfbExited chan error
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Name returns the browser identity.
func (m *Manager) Name() string { return m.cfg.Name }

// Start launches Chrome (or connects to the remote instance) and returns the
// Rod browser handle.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}

	b, err := m.launch(ctx)
	if err != nil {
		m.cleanup()
		return nil, err
	}
	m.browser = b
	return b, nil
}

// Browser returns the current Rod browser handle, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Mode == ModeHeadful {
		if err := m.startXvfb(ctx); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.Mode == ModeHeadful {
			l = l.Headless(false).Env("DISPLAY=" + m.cfg.XvfbDisplay)
		} else {
			l = l.Headless(true)
		}
		if m.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}
		// Stable rendering between runs.
		l = l.Set("hide-scrollbars").
			Set("force-color-profile", "srgb").
			Set("font-render-hinting", "none")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "mode", m.cfg.Mode, "name", m.cfg.Name)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}
