package browser

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/hazyhaar/designref/capture"
)

// DefaultElementTimeout bounds how long Locate and Hide wait for an element.
const DefaultElementTimeout = 10 * time.Second

// Tab wraps the Rod page a scenario runs in.
type Tab struct {
	Page    *rod.Page
	Timeout time.Duration
	manager *Manager
	router  *rod.HijackRouter
}

// OpenTab creates a new blank tab, applying stealth and resource blocking
// according to the manager config.
func OpenTab(ctx context.Context, mgr *Manager) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	tab := &Tab{Page: page, Timeout: DefaultElementTimeout, manager: mgr}
	if bl := newBlockList(mgr.cfg.BlockResources, mgr.cfg.BlockURLs); !bl.empty() {
		router, err := bl.hijack(page)
		if err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
		tab.router = router
	}
	return tab, nil
}

// Navigate loads url and waits for the load event.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := t.Page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := t.Page.Context(navCtx).WaitLoad(); err != nil {
		t.manager.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// SetWindowSize positions the window at the top-left corner and resizes it.
func (t *Tab) SetWindowSize(ctx context.Context, width, height int) error {
	err := t.Page.Context(ctx).SetWindow(&proto.BrowserBounds{
		Left:        gson.Int(0),
		Top:         gson.Int(0),
		Width:       gson.Int(width),
		Height:      gson.Int(height),
		WindowState: proto.BrowserWindowStateNormal,
	})
	if err != nil {
		return fmt.Errorf("browser: set window %dx%d: %w", width, height, err)
	}
	return nil
}

// Screenshot captures the visible viewport as PNG. Element regions from
// Locate are expressed in the same viewport coordinates.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	b, err := t.Page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return b, nil
}

// FullScreenshot captures the whole scrollable page as PNG.
func (t *Tab) FullScreenshot(ctx context.Context) ([]byte, error) {
	b, err := t.Page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: full screenshot: %w", err)
	}
	return b, nil
}

// Locate waits for the element to be visible and returns its bounding box
// in viewport pixels.
func (t *Tab) Locate(ctx context.Context, selector string) (capture.Region, error) {
	el, err := t.element(ctx, selector)
	if err != nil {
		return capture.Region{}, err
	}
	if err := el.WaitVisible(); err != nil {
		return capture.Region{}, fmt.Errorf("browser: wait visible %q: %w", selector, err)
	}
	shape, err := el.Shape()
	if err != nil {
		return capture.Region{}, fmt.Errorf("browser: shape %q: %w", selector, err)
	}
	box := shape.Box()
	if box == nil {
		return capture.Region{}, fmt.Errorf("browser: %q has no layout box", selector)
	}

	x, y := math.Floor(box.X), math.Floor(box.Y)
	return capture.Region{
		X:      int(x),
		Y:      int(y),
		Width:  int(math.Ceil(box.X+box.Width) - x),
		Height: int(math.Ceil(box.Y+box.Height) - y),
	}, nil
}

// Hide sets display:none on the element and waits until it is gone.
func (t *Tab) Hide(ctx context.Context, selector string) error {
	el, err := t.element(ctx, selector)
	if err != nil {
		return err
	}
	if _, err := el.Eval(`() => { this.style.display = 'none' }`); err != nil {
		return fmt.Errorf("browser: hide %q: %w", selector, err)
	}
	if err := el.WaitInvisible(); err != nil {
		return fmt.Errorf("browser: wait invisible %q: %w", selector, err)
	}
	return nil
}

// hideCursorJS moves focus to a throwaway off-screen anchor so no caret or
// hover state ends up in the capture.
const hideCursorJS = `() => {
	let a = document.getElementById('__designref_focus');
	if (!a) {
		a = document.createElement('a');
		a.id = '__designref_focus';
		a.href = '#';
		a.style.position = 'fixed';
		a.style.left = '-10px';
		a.style.top = '-10px';
		a.style.width = '1px';
		a.style.height = '1px';
		a.style.opacity = '0';
		document.body.appendChild(a);
	}
	a.focus();
}`

// HideCursor parks focus and the mouse outside the page content.
func (t *Tab) HideCursor(ctx context.Context) error {
	p := t.Page.Context(ctx)
	if _, err := p.Eval(hideCursorJS); err != nil {
		return fmt.Errorf("browser: hide cursor: %w", err)
	}
	if err := p.Mouse.MoveTo(proto.Point{X: 0, Y: 0}); err != nil {
		return fmt.Errorf("browser: move mouse: %w", err)
	}
	return nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.router != nil {
		t.router.Stop()
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

// element finds a CSS selector, or an XPath expression when the selector
// starts with "/" or "(".
func (t *Tab) element(ctx context.Context, selector string) (*rod.Element, error) {
	p := t.Page.Context(ctx).Timeout(t.Timeout)
	var el *rod.Element
	var err error
	if strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(") {
		el, err = p.ElementX(selector)
	} else {
		el, err = p.Element(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("browser: element %q: %w", selector, err)
	}
	return el.CancelTimeout().Context(ctx), nil
}
