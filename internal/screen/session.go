package screen

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/veskora/screenpilot/internal/config"
)

// startupTimeout bounds how long we wait for the browser to come up and
// render the start page.
const startupTimeout = 30 * time.Second

// Session owns one browser tab for the lifetime of an agent run. It either
// launches a browser process or attaches to an already-running one over the
// DevTools protocol, depending on configuration.
type Session struct {
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

// NewSession brings up a responsive tab showing the configured start page.
// The caller must Close the session to release the browser.
func NewSession(ctx context.Context, cfg config.ScreenConfig, logger *zap.Logger) (*Session, error) {
	s := &Session{logger: logger.Named("screen.session")}

	if cfg.RemoteDebuggingURL != "" {
		s.logger.Info("Attaching to running browser", zap.String("url", cfg.RemoteDebuggingURL))
		s.allocCtx, s.allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteDebuggingURL)
	} else {
		s.logger.Info("Launching browser",
			zap.Bool("headless", cfg.Headless),
			zap.Int("window_width", cfg.WindowWidth),
			zap.Int("window_height", cfg.WindowHeight))
		s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(ctx, buildAllocatorOptions(cfg)...)
	}

	s.tabCtx, s.tabCancel = chromedp.NewContext(s.allocCtx)

	// Navigate the tab to confirm the browser is alive before the run starts.
	startURL := cfg.StartURL
	if startURL == "" {
		startURL = "about:blank"
	}
	startupCtx, cancel := context.WithTimeout(s.tabCtx, startupTimeout)
	defer cancel()
	if err := chromedp.Run(startupCtx, chromedp.Navigate(startURL)); err != nil {
		s.tabCancel()
		s.allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	s.logger.Info("Browser session ready", zap.String("start_url", startURL))
	return s, nil
}

// Executor returns a CDP executor bound to the session's tab.
func (s *Session) Executor() *CDPExecutor {
	return NewCDPExecutor(s.tabCtx)
}

// Close tears down the tab and, when this process launched the browser,
// waits for it to terminate.
func (s *Session) Close() error {
	s.logger.Info("Closing browser session")
	s.tabCancel()
	if s.allocCancel != nil {
		s.allocCancel()
		// Wait for the allocator context to confirm termination.
		<-s.allocCtx.Done()
	}
	return nil
}

// buildAllocatorOptions assembles launch flags for a configurable browser
// instance that does not advertise itself as automated.
func buildAllocatorOptions(cfg config.ScreenConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		// Overrides the default so Chrome drops the automation infobar.
		chromedp.Flag("enable-automation", false),
		// Stealth flag: disable the Blink feature behind navigator.webdriver.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)

	// Flags required for running inside containers (e.g., Docker on Linux).
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}
