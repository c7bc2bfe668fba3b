package agent

import (
	"context"

	"github.com/veskora/screenpilot/api/schemas"
)

// Screen captures the current display state. Implementations sit on the
// boundary to the real desktop; failures are reported, never panicked.
type Screen interface {
	// Capture returns the current screen rendered as PNG bytes.
	Capture(ctx context.Context) ([]byte, error)
	// Size returns the screen dimensions in pixels.
	Size(ctx context.Context) (schemas.ScreenSize, error)
}

// Input performs user-level input against the screen.
type Input interface {
	// ClickAt moves to and clicks the given screen coordinate.
	ClickAt(ctx context.Context, x, y int) error
	// TypeText types the string into the currently focused element.
	TypeText(ctx context.Context, text string) error
}

// TextProvider supplies the text typed into input elements. It is a
// pluggable strategy so callers can substitute generated or scripted
// values for the configured default.
type TextProvider interface {
	// TextFor returns the string to type into the given element.
	TextFor(element schemas.Element) string
}
