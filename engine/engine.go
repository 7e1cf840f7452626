// Package engine is the browser capability boundary. Everything above it
// (page fetching, captcha solving, orchestration) talks to a Driver and
// never to the automation library directly.
package engine

import (
	"context"
	"time"
)

// Driver is one live browser session.
type Driver interface {
	// Navigate loads url in the session's page.
	Navigate(ctx context.Context, url string) error

	// Reload reloads the current page.
	Reload(ctx context.Context) error

	// Source returns the current rendered markup.
	Source(ctx context.Context) (string, error)

	// Title returns document.title, or "" if it cannot be read.
	Title(ctx context.Context) string

	// URL returns the current location, or "" if it cannot be read.
	URL(ctx context.Context) string

	// Locate waits up to timeout for the first element matching selector.
	Locate(ctx context.Context, selector string, timeout time.Duration) (Element, error)

	// Perform executes a pointer gesture.
	Perform(ctx context.Context, g Gesture) error

	// Quit terminates the browser process.
	Quit() error
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}

// Element is a located DOM element.
type Element interface {
	// Box returns the element's rendered bounding box in CSS pixels.
	Box(ctx context.Context) (Box, error)
}

// Box is a rectangle in viewport coordinates.
type Box struct {
	X, Y, Width, Height float64
}

// Center returns the midpoint of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Point is a position in viewport coordinates.
type Point struct {
	X, Y float64
}

// Move is one relative pointer step followed by a pause.
type Move struct {
	DX, DY float64
	Pause  time.Duration
}

// Gesture is a press-drag-release: the pointer goes down at Start, follows
// Moves (each relative to the previous position) and is released at the end.
type Gesture struct {
	Start Point
	Moves []Move
}

// End returns the pointer position after the last move.
func (g Gesture) End() Point {
	p := g.Start
	for _, m := range g.Moves {
		p.X += m.DX
		p.Y += m.DY
	}
	return p
}
