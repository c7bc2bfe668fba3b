package screen

import (
	"context"
	"fmt"
	"math/rand"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"go.uber.org/zap"

	"github.com/veskora/screenpilot/api/schemas"
	"github.com/veskora/screenpilot/internal/agent"
	"github.com/veskora/screenpilot/internal/config"
)

// minPace is the floor for sampled input delays. Gaussian samples can go
// negative; anything faster than this reads as machine input.
const minPace = 20 * time.Millisecond

// Driver exposes a browser tab as the agent's screen and input surfaces.
// Mouse and keyboard events are paced with gaussian jitter so the page
// sees input timing closer to a human operator than a script.
type Driver struct {
	exec   Executor
	cfg    config.ScreenConfig
	logger *zap.Logger
	rng    *rand.Rand
}

var (
	_ agent.Screen = (*Driver)(nil)
	_ agent.Input  = (*Driver)(nil)
)

// NewDriver creates a driver on top of the given executor.
func NewDriver(exec Executor, cfg config.ScreenConfig, logger *zap.Logger) *Driver {
	return &Driver{
		exec:   exec,
		cfg:    cfg,
		logger: logger.Named("screen"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Capture grabs a PNG screenshot of the current viewport.
func (d *Driver) Capture(ctx context.Context) ([]byte, error) {
	shot, err := d.exec.CaptureScreenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	d.logger.Debug("Screenshot captured", zap.Int("bytes", len(shot)))
	return shot, nil
}

// Size reports the viewport dimensions in CSS pixels. Screenshots are taken
// of the same viewport, so coordinates derived from this size land where the
// model saw the element.
func (d *Driver) Size(ctx context.Context) (schemas.ScreenSize, error) {
	viewport, err := d.exec.GetLayoutMetrics(ctx)
	if err != nil {
		return schemas.ScreenSize{}, fmt.Errorf("querying layout metrics: %w", err)
	}
	if viewport == nil || viewport.ClientWidth <= 0 || viewport.ClientHeight <= 0 {
		return schemas.ScreenSize{}, fmt.Errorf("browser reported an empty viewport")
	}
	return schemas.ScreenSize{
		Width:  int(viewport.ClientWidth),
		Height: int(viewport.ClientHeight),
	}, nil
}

// ClickAt performs a full left-click at the given viewport coordinates:
// move, press, a brief hold, then release.
func (d *Driver) ClickAt(ctx context.Context, x, y int) error {
	fx, fy := float64(x), float64(y)

	move := input.DispatchMouseEvent(input.MouseMoved, fx, fy)
	if err := d.exec.DispatchMouseEvent(ctx, move); err != nil {
		return fmt.Errorf("moving cursor to (%d, %d): %w", x, y, err)
	}

	press := input.DispatchMouseEvent(input.MousePressed, fx, fy).
		WithButton(input.Left).
		WithClickCount(1)
	if err := d.exec.DispatchMouseEvent(ctx, press); err != nil {
		return fmt.Errorf("pressing at (%d, %d): %w", x, y, err)
	}

	if err := d.exec.Sleep(ctx, d.pace(d.cfg.ClickHoldMean, d.cfg.ClickHoldStdDev)); err != nil {
		return fmt.Errorf("holding click at (%d, %d): %w", x, y, err)
	}

	release := input.DispatchMouseEvent(input.MouseReleased, fx, fy).
		WithButton(input.Left).
		WithClickCount(1)
	if err := d.exec.DispatchMouseEvent(ctx, release); err != nil {
		return fmt.Errorf("releasing at (%d, %d): %w", x, y, err)
	}

	d.logger.Debug("Click dispatched", zap.Int("x", x), zap.Int("y", y))
	return nil
}

// TypeText enters text into the focused element one rune at a time, with a
// sampled pause before each keystroke.
func (d *Driver) TypeText(ctx context.Context, text string) error {
	for _, r := range text {
		if err := d.exec.Sleep(ctx, d.pace(d.cfg.KeyPauseMean, d.cfg.KeyPauseStdDev)); err != nil {
			return fmt.Errorf("pacing keystroke: %w", err)
		}
		if err := d.exec.InsertText(ctx, string(r)); err != nil {
			return fmt.Errorf("typing %q: %w", r, err)
		}
	}
	d.logger.Debug("Text typed", zap.Int("runes", utf8.RuneCountInString(text)))
	return nil
}

// pace samples a delay from a normal distribution around mean.
func (d *Driver) pace(mean, stdDev time.Duration) time.Duration {
	sampled := time.Duration(float64(mean) + d.rng.NormFloat64()*float64(stdDev))
	if sampled < minPace {
		return minPace
	}
	return sampled
}
