// Command designref runs design-reference scenarios against a web
// application and serves the verification history.
//
// Usage:
//
//	designref -config designref.yaml                 # run the feature suite
//	designref -config designref.yaml -tags @login    # run a subset
//	designref -config designref.yaml -serve          # browse history over HTTP
//	designref -config designref.yaml -report md      # print the latest run as Markdown
//	designref -config designref.yaml -mcp            # MCP history tools on stdio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cucumber/godog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/designref/capture"
	"github.com/hazyhaar/designref/config"
	"github.com/hazyhaar/designref/diagnostics"
	"github.com/hazyhaar/designref/history"
	"github.com/hazyhaar/designref/idgen"
	"github.com/hazyhaar/designref/imagediff"
	"github.com/hazyhaar/designref/internal/browser"
	"github.com/hazyhaar/designref/kit"
	"github.com/hazyhaar/designref/pageobjects"
	"github.com/hazyhaar/designref/reference"
	"github.com/hazyhaar/designref/report"
	"github.com/hazyhaar/designref/scenario"
	"github.com/hazyhaar/designref/verify"
)

const defaultConfigFile = "designref.yaml"

func main() {
	configPath := flag.String("config", "", "path to designref.yaml (default: ./designref.yaml when present)")
	tags := flag.String("tags", "", "godog tag expression, overrides the config")
	format := flag.String("format", "pretty", "godog output format")
	serve := flag.Bool("serve", false, "serve the history report over HTTP")
	mcpStdio := flag.Bool("mcp", false, "serve the history MCP tools on stdio")
	reportFmt := flag.String("report", "", "print a run report to stdout: md")
	runID := flag.String("run", "", "run id for -report (default: latest)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("designref: fatal", "error", err)
		os.Exit(1)
	}
	if *tags != "" {
		cfg.Tags = *tags
	}

	switch {
	case *serve:
		err = runServe(ctx, logger, cfg)
	case *mcpStdio:
		err = runMCP(ctx, logger, cfg)
	case *reportFmt != "":
		err = runReport(ctx, cfg, *reportFmt, *runID)
	default:
		var status int
		status, err = runSuite(ctx, logger, cfg, *format)
		if err == nil {
			stop()
			os.Exit(status)
		}
	}
	if err != nil {
		logger.Error("designref: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			return config.Default(), nil
		}
		path = defaultConfigFile
	}
	return config.LoadFile(path)
}

func runSuite(ctx context.Context, logger *slog.Logger, cfg *config.Config, format string) (int, error) {
	po, err := pageobjects.Load(cfg.Path(cfg.PageObjects))
	if err != nil {
		return 1, err
	}
	differ, err := imagediff.New(cfg.Compare.Engine, logger)
	if err != nil {
		return 1, err
	}

	store, err := history.Open(cfg.Path(cfg.Report.HistoryDB))
	if err != nil {
		return 1, fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	mode := browser.ModeHeadless
	if cfg.Browser.Mode == "headful" {
		mode = browser.ModeHeadful
	}
	mgr := browser.NewManager(browser.Config{
		Name:           cfg.Browser.Name,
		RemoteURL:      cfg.Browser.Remote,
		Bin:            cfg.Browser.Bin,
		Mode:           mode,
		Stealth:        cfg.Browser.Stealth,
		BlockResources: cfg.Browser.BlockResources,
		BlockURLs:      cfg.Browser.BlockURLs,
		NoSandbox:      cfg.Browser.NoSandbox,
		XvfbDisplay:    cfg.Browser.XvfbDisplay,
		WindowWidth:    cfg.Browser.Window.Width,
		WindowHeight:   cfg.Browser.Window.Height,
		Logger:         logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return 1, err
	}
	defer mgr.Close()

	tab, err := browser.OpenTab(ctx, mgr)
	if err != nil {
		return 1, err
	}
	defer tab.Close()

	var diagOpts []diagnostics.Option
	switch cfg.Color {
	case "always":
		diagOpts = append(diagOpts, diagnostics.WithColor(true))
	case "never":
		diagOpts = append(diagOpts, diagnostics.WithColor(false))
	}
	if cfg.HostRoot != "" {
		diagOpts = append(diagOpts, diagnostics.WithHostRoot(cfg.HostRoot))
	}

	v := verify.New(verify.Config{
		PassBand:   cfg.Compare.PassBand,
		MaxRetries: cfg.Compare.MaxRetries,
		RetryDelay: cfg.Compare.RetryDelay,
		TempRoot:   cfg.Compare.TmpRoot,
		Logger:     logger,
	},
		capture.New(tab),
		reference.New(cfg.Root, cfg.Compare.BaselineDir, mgr.Name()),
		differ,
		diagnostics.New(os.Stderr, cfg.Root, diagOpts...),
		verify.WithRecorder(history.NewRecorder(store, logger)),
	)

	suite := scenario.New(scenario.Config{
		BaseURL:         cfg.BaseURL,
		WindowWidth:     cfg.Browser.Window.Width,
		WindowHeight:    cfg.Browser.Window.Height,
		ScreenshotsRoot: v.ScreenshotsRoot(),
		FailureDir:      cfg.Path(cfg.Report.Dir),
		Logger:          logger,
	}, tab, v, po)

	paths := make([]string, len(cfg.Features))
	for i, p := range cfg.Features {
		paths[i] = cfg.Path(p)
	}

	runID := idgen.NewRunID()
	logger.Info("designref: run starting", "run_id", runID, "features", paths, "tags", cfg.Tags, "browser", mgr.Name())

	ts := godog.TestSuite{
		Name:                 "designref",
		TestSuiteInitializer: suite.InitializeTestSuite,
		ScenarioInitializer:  suite.InitializeScenario,
		Options: &godog.Options{
			Format:         format,
			Paths:          paths,
			Tags:           cfg.Tags,
			Concurrency:    1,
			Strict:         true,
			NoColors:       cfg.Color == "never",
			Output:         os.Stdout,
			DefaultContext: kit.WithRunID(ctx, runID),
		},
	}
	status := ts.Run()

	logger.Info("designref: run complete", "run_id", runID, "status", status)
	return status, nil
}

func runServe(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	store, err := history.Open(cfg.Path(cfg.Report.HistoryDB))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	srv := report.New(store, report.Config{
		User:         cfg.Report.User,
		PasswordHash: cfg.Report.PasswordHash,
		ArtifactRoots: []string{
			cfg.Path(cfg.Compare.BaselineDir),
			filepath.Join(cfg.Compare.TmpRoot, verify.ScreenshotsDir),
		},
		Logger: logger,
	})
	return srv.ListenAndServe(ctx, cfg.Report.Listen)
}

func runMCP(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	store, err := history.Open(cfg.Path(cfg.Report.HistoryDB))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	srv := mcp.NewServer(&mcp.Implementation{Name: "designref", Version: "1.0.0"}, nil)
	store.RegisterMCP(srv)

	logger.Info("designref: mcp on stdio", "db", cfg.Report.HistoryDB)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func runReport(ctx context.Context, cfg *config.Config, format, runID string) error {
	if format != "md" {
		return fmt.Errorf("unknown report format %q (use md)", format)
	}
	store, err := history.Open(cfg.Path(cfg.Report.HistoryDB))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	md, err := report.Markdown(ctx, store, runID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, md)
	return err
}
