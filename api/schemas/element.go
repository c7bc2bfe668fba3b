package schemas

import (
	"fmt"
	"math"
)

// -- Element Schemas --

// The vision model reports element positions on a virtual 0-1000 grid
// regardless of the actual capture resolution.
const coordinateGridMax = 1000.0

// ElementKind classifies an interactive element reported by the vision model.
// Values outside the known set are preserved as-is; the agent decides at
// action time whether it can act on them.
type ElementKind string

const (
	KindButton ElementKind = "button" // Clickable button-like controls.
	KindLink   ElementKind = "link"   // Navigational links.
	KindInput  ElementKind = "input"  // Text fields; clicked first, then typed into.
)

// ScreenSize holds the dimensions of a capture in device pixels.
type ScreenSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s ScreenSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// NormalizedBox is a bounding box on the model's virtual grid, ordered
// [x_min, y_min, x_max, y_max] exactly as emitted in the box_2d field.
type NormalizedBox [4]float64

// PixelBox is a bounding box in device pixels, same ordering as NormalizedBox.
type PixelBox struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Center returns the click target for the box.
func (p PixelBox) Center() (x, y int) {
	return (p.XMin + p.XMax) / 2, (p.YMin + p.YMax) / 2
}

// Element is one interactive control detected on the current capture.
//
// PixelBox is always derived from Box and the capture size, never authored
// directly. It is nil when the model omitted box_2d or supplied something
// other than four numbers; such an element is kept but cannot be acted on.
type Element struct {
	Label    string         `json:"label"`
	Kind     ElementKind    `json:"type"`
	Box      *NormalizedBox `json:"box_2d,omitempty"`
	PixelBox *PixelBox      `json:"pixel_box,omitempty"`
}

// Actionable reports whether the element has a usable screen position.
func (e Element) Actionable() bool {
	return e.PixelBox != nil
}

// ToPixelBox projects the normalized box onto a concrete capture size.
// Each coordinate maps as floor(n/1000 * dimension); x coordinates scale
// against the width, y coordinates against the height. Model output is not
// trusted: coordinates are clamped into the grid and min/max pairs are
// ordered before scaling, so the result is always a valid non-negative box.
func (b NormalizedBox) ToPixelBox(size ScreenSize) PixelBox {
	xMin, xMax := orderPair(clampToGrid(b[0]), clampToGrid(b[2]))
	yMin, yMax := orderPair(clampToGrid(b[1]), clampToGrid(b[3]))

	return PixelBox{
		XMin: scaleToPixels(xMin, size.Width),
		YMin: scaleToPixels(yMin, size.Height),
		XMax: scaleToPixels(xMax, size.Width),
		YMax: scaleToPixels(yMax, size.Height),
	}
}

// scaleToPixels truncates toward zero after scaling (floor for the
// non-negative inputs produced by clampToGrid). The truncation is the
// contract; callers compare exact pixel values.
func scaleToPixels(n float64, dimension int) int {
	return int(math.Floor(n / coordinateGridMax * float64(dimension)))
}

func clampToGrid(n float64) float64 {
	if n < 0 {
		return 0
	}
	if n > coordinateGridMax {
		return coordinateGridMax
	}
	return n
}

func orderPair(low, high float64) (float64, float64) {
	if low > high {
		return high, low
	}
	return low, high
}
