// Package scenario binds the verification engine to godog: hooks that
// prepare the browser per scenario and the steps feature files call.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cucumber/godog"

	"github.com/hazyhaar/designref/capture"
	"github.com/hazyhaar/designref/kit"
	"github.com/hazyhaar/designref/verify"
)

// ErrUsage marks a step used outside the conditions it requires.
var ErrUsage = errors.New("scenario: usage")

// Tags recognised by the hooks.
const (
	TagScreenshot = "@Screenshot"
	TagDesktop    = "@desktop"
	TagTablet     = "@tablet"
	TagMobile     = "@mobile"
)

// Step expressions.
const (
	StepMatch    = `^the "([^"]*)" will match the design reference "([^"]*)"$`
	StepHide     = `^I hide the "([^"]*)"$`
	StepNavigate = `^I am on the "([^"]*)" page$`
)

// Elements whose names match this keep the cursor where it is, since
// moving focus would close them.
var keepCursor = regexp.MustCompile(`(?i)popup|dialog`)

// Driver is the browser surface the steps use. *browser.Tab satisfies it.
type Driver interface {
	capture.Screen
	FullScreenshot(ctx context.Context) ([]byte, error)
	Navigate(ctx context.Context, url string) error
	SetWindowSize(ctx context.Context, width, height int) error
	Locate(ctx context.Context, selector string) (capture.Region, error)
	Hide(ctx context.Context, selector string) error
	HideCursor(ctx context.Context) error
}

// Verifier runs one design-reference verification. *verify.Verifier
// satisfies it.
type Verifier interface {
	Verify(ctx context.Context, region capture.Region, name string) (*verify.Result, error)
}

// PageObjects resolves step names. *pageobjects.Set satisfies it.
type PageObjects interface {
	Element(name string) (string, error)
	URL(baseURL, name string) (string, error)
}

// Config configures the hooks and steps.
type Config struct {
	BaseURL string

	// Window size applied to @Screenshot scenarios without a platform tag.
	// Default: 1400x1024.
	WindowWidth  int
	WindowHeight int

	// ScreenshotsRoot is emptied before the suite runs.
	ScreenshotsRoot string

	// FailureDir receives a full-page screenshot of every failed scenario.
	// Empty disables it.
	FailureDir string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1400
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Suite holds the collaborators shared by every scenario of a run.
type Suite struct {
	cfg      Config
	driver   Driver
	verifier Verifier
	objects  PageObjects
}

// New creates a Suite.
func New(cfg Config, d Driver, v Verifier, po PageObjects) *Suite {
	cfg.defaults()
	return &Suite{cfg: cfg, driver: d, verifier: v, objects: po}
}

// InitializeTestSuite registers suite-level hooks.
func (s *Suite) InitializeTestSuite(tsc *godog.TestSuiteContext) {
	tsc.BeforeSuite(s.clearScreenshots)
}

// InitializeScenario registers the hooks and steps.
func (s *Suite) InitializeScenario(sc *godog.ScenarioContext) {
	sc.Before(s.before)
	sc.After(s.after)

	sc.Step(StepMatch, s.matchDesignReference)
	sc.Step(StepHide, s.hide)
	sc.Step(StepNavigate, s.navigate)
}

func (s *Suite) clearScreenshots() {
	root := s.cfg.ScreenshotsRoot
	if root == "" {
		return
	}
	if err := os.RemoveAll(root); err != nil {
		s.cfg.Logger.Warn("scenario: clear screenshots", "dir", root, "error", err)
		return
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		s.cfg.Logger.Warn("scenario: create screenshots dir", "dir", root, "error", err)
	}
}

func (s *Suite) before(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
	st := newState(sc)
	ctx = withState(ctx, st)
	ctx = kit.WithScenario(ctx, sc.Name)
	ctx = kit.WithFeature(ctx, sc.Uri)

	if st.has(TagScreenshot) && !st.has(TagDesktop) && !st.has(TagTablet) && !st.has(TagMobile) {
		if err := s.driver.SetWindowSize(ctx, s.cfg.WindowWidth, s.cfg.WindowHeight); err != nil {
			return ctx, fmt.Errorf("scenario: resize window: %w", err)
		}
		s.cfg.Logger.Debug("scenario: window resized",
			"scenario", sc.Name, "width", s.cfg.WindowWidth, "height", s.cfg.WindowHeight)
	}
	return ctx, nil
}

func (s *Suite) after(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
	if err == nil || s.cfg.FailureDir == "" {
		return ctx, nil
	}
	path := FailurePath(s.cfg.FailureDir, sc.Name)
	if serr := s.saveFailure(ctx, path); serr != nil {
		s.cfg.Logger.Warn("scenario: failure screenshot", "scenario", sc.Name, "error", serr)
		return ctx, nil
	}
	s.cfg.Logger.Info("scenario: failure screenshot saved", "scenario", sc.Name, "path", path)
	return ctx, nil
}

func (s *Suite) saveFailure(ctx context.Context, path string) error {
	png, err := s.driver.FullScreenshot(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}

// FailurePath is where the failure screenshot of a scenario is written:
// whitespace runs and path separators in the name become underscores.
func FailurePath(dir, scenario string) string {
	name := strings.Join(strings.Fields(scenario), "_")
	name = strings.NewReplacer("/", "_", `\`, "_").Replace(name)
	return filepath.Join(dir, name+".png")
}

func (s *Suite) matchDesignReference(ctx context.Context, element, reference string) (context.Context, error) {
	st := stateFrom(ctx)
	if st == nil || !st.has(TagScreenshot) {
		return ctx, fmt.Errorf("%w: design reference steps need the %s tag on the scenario", ErrUsage, TagScreenshot)
	}

	selector, err := s.objects.Element(element)
	if err != nil {
		return ctx, err
	}

	if !keepCursor.MatchString(element) {
		if err := s.driver.HideCursor(ctx); err != nil {
			return ctx, err
		}
	}

	region, err := s.driver.Locate(ctx, selector)
	if err != nil {
		return ctx, err
	}

	res, err := s.verifier.Verify(ctx, region, reference)
	if err != nil {
		return ctx, err
	}
	st.results = append(st.results, res)
	return ctx, res.Err()
}

func (s *Suite) hide(ctx context.Context, element string) (context.Context, error) {
	selector, err := s.objects.Element(element)
	if err != nil {
		return ctx, err
	}
	return ctx, s.driver.Hide(ctx, selector)
}

func (s *Suite) navigate(ctx context.Context, page string) (context.Context, error) {
	url, err := s.objects.URL(s.cfg.BaseURL, page)
	if err != nil {
		return ctx, err
	}
	return ctx, s.driver.Navigate(ctx, url)
}
