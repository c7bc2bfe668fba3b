package screen

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Executor defines the contract for raw browser interactions, allowing
// the driver to be tested against a mock instead of a live tab.
type Executor interface {
	// Sleep pauses execution for a given duration (context-aware).
	Sleep(ctx context.Context, d time.Duration) error

	// DispatchMouseEvent sends a raw low-level mouse event.
	DispatchMouseEvent(ctx context.Context, p *input.DispatchMouseEventParams) error

	// InsertText types text into the focused element as if entered from a keyboard.
	InsertText(ctx context.Context, text string) error

	// CaptureScreenshot grabs a PNG of the current viewport.
	CaptureScreenshot(ctx context.Context) ([]byte, error)

	// GetLayoutMetrics retrieves the browser's CSS visual viewport.
	GetLayoutMetrics(ctx context.Context) (cssVisualViewport *page.VisualViewport, err error)
}

// CDPExecutor is the production implementation of the Executor interface.
// It is bound to a session's tab context, which carries the CDP target;
// the caller's context contributes cancellation and deadlines.
type CDPExecutor struct {
	tabCtx context.Context
}

// NewCDPExecutor creates an executor bound to the given tab context.
func NewCDPExecutor(tabCtx context.Context) *CDPExecutor {
	return &CDPExecutor{tabCtx: tabCtx}
}

// run executes a chromedp action on the tab, canceled when either the
// tab context or the caller's context is done.
func (e *CDPExecutor) run(ctx context.Context, a chromedp.Action) error {
	opCtx, cancel := combineContext(e.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, a)
}

func (e *CDPExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return e.run(ctx, chromedp.Sleep(d))
}

func (e *CDPExecutor) DispatchMouseEvent(ctx context.Context, p *input.DispatchMouseEventParams) error {
	return e.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return p.Do(c)
	}))
}

func (e *CDPExecutor) InsertText(ctx context.Context, text string) error {
	return e.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return input.InsertText(text).Do(c)
	}))
}

func (e *CDPExecutor) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := e.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *CDPExecutor) GetLayoutMetrics(ctx context.Context) (*page.VisualViewport, error) {
	var viewport *page.VisualViewport
	err := e.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		// Use the modern 7-value return signature and only keep what we need.
		_, _, _, _, cssVisualViewport, _, err := page.GetLayoutMetrics().Do(c)
		viewport = cssVisualViewport
		return err
	}))
	if err != nil {
		return nil, err
	}
	return viewport, nil
}
