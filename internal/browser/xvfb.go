package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Minimum Xvfb screen. Windows larger than this grow the screen so that
// SetWindowSize is never clipped by the display.
const (
	minScreenWidth  = 1920
	minScreenHeight = 1080
	screenDepth     = 24
)

// x11SocketDir is where X servers create their listening sockets.
var x11SocketDir = "/tmp/.X11-unix"

// xvfbArgs builds the Xvfb command line for display sized to fit a window of
// width x height.
func xvfbArgs(display string, width, height int) []string {
	w, h := max(width, minScreenWidth), max(height, minScreenHeight)
	return []string{
		display,
		"-screen", "0", fmt.Sprintf("%dx%dx%d", w, h, screenDepth),
		"-ac", "-nocursor", "-nolisten", "tcp",
	}
}

// displaySocket maps ":99" or ":99.0" to the X11 socket path for that
// display.
func displaySocket(display string) (string, error) {
	num, ok := strings.CutPrefix(display, ":")
	if !ok || num == "" {
		return "", fmt.Errorf("xvfb: display %q is not of the form :N", display)
	}
	num, _, _ = strings.Cut(num, ".")
	for _, c := range num {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("xvfb: display %q is not of the form :N", display)
		}
	}
	return filepath.Join(x11SocketDir, "X"+num), nil
}

// waitForSocket polls until path exists, exited reports the server gone, or
// ctx ends.
func waitForSocket(ctx context.Context, path string, exited <-chan error) error {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case err := <-exited:
			return fmt.Errorf("xvfb exited before %s appeared: %v", path, err)
		case <-ctx.Done():
			return fmt.Errorf("xvfb: waiting for %s: %w", path, ctx.Err())
		case <-tick.C:
		}
	}
}

// startXvfb launches the virtual display for headful mode and waits until
// its socket accepts clients.
func (m *Manager) startXvfb(ctx context.Context) error {
	if m.xvfb != nil {
		return nil
	}
	display := m.cfg.XvfbDisplay
	sock, err := displaySocket(display)
	if err != nil {
		return err
	}
	if _, err := os.Stat(sock); err == nil {
		m.cfg.Logger.Info("browser: reusing existing X display", "display", display)
		return nil
	}

	args := xvfbArgs(display, m.cfg.WindowWidth, m.cfg.WindowHeight)
	cmd := exec.Command("Xvfb", args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.XvfbTimeout)
	defer cancel()
	if err := waitForSocket(waitCtx, sock, exited); err != nil {
		cmd.Process.Kill()
		return err
	}

	m.xvfb, m.xvfbExited = cmd, exited
	m.cfg.Logger.Info("browser: xvfb started", "display", display, "screen", args[3], "pid", cmd.Process.Pid)
	return nil
}

// stopXvfb asks Xvfb to terminate and kills it after a short grace period.
func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	m.xvfb.Process.Signal(syscall.SIGTERM)
	select {
	case <-m.xvfbExited:
	case <-time.After(2 * time.Second):
		m.xvfb.Process.Kill()
		<-m.xvfbExited
	}
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.cfg.XvfbDisplay)
	m.xvfb, m.xvfbExited = nil, nil
}
