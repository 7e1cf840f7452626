// Package enginetest provides a scriptable in-memory engine.Driver for tests.
package enginetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/use-agent/offerscrape/engine"
)

// ErrNotFound is returned by Locate for selectors without a box.
var ErrNotFound = errors.New("enginetest: element not found")

// Driver is a fake browser page. Exported hook fields must be set before
// the driver is used; counters are read through the accessor methods.
type Driver struct {
	// Pages maps a URL to the markup served when it is navigated to.
	Pages map[string]string

	// Titles maps a URL to its document title.
	Titles map[string]string

	// Elements maps a selector to the box Locate reports for it.
	Elements map[string]engine.Box

	// NavigateErr, LocateErr, PerformErr and QuitErr force failures.
	NavigateErr error
	LocateErr   error
	PerformErr  error
	QuitErr     error

	// NavigateErrs fails navigation to specific URLs.
	NavigateErrs map[string]error

	// QuitPanics makes Quit panic.
	QuitPanics bool

	// AfterPerform runs after each successful gesture, e.g. to swap the
	// challenge page for the product page.
	AfterPerform func(d *Driver, n int)

	// AfterReload runs after each reload.
	AfterReload func(d *Driver, n int)

	// BeforeLocate runs at the start of each Locate call, n counting from 1,
	// e.g. to make an element appear late.
	BeforeLocate func(d *Driver, selector string, n int)

	mu       sync.Mutex
	url      string
	html     string
	navs     []string
	gestures []engine.Gesture
	locates  int
	reloads  int
	quits    int
}

// New returns a Driver serving pages.
func New(pages map[string]string) *Driver {
	return &Driver{
		Pages:    pages,
		Titles:   map[string]string{},
		Elements: map[string]engine.Box{},
	}
}

// SetHTML replaces the current markup.
func (d *Driver) SetHTML(html string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.html = html
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	if err := d.NavigateErrs[url]; err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navs = append(d.navs, url)
	d.url = url
	d.html = d.Pages[url]
	return nil
}

func (d *Driver) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.reloads++
	n := d.reloads
	d.mu.Unlock()
	if d.AfterReload != nil {
		d.AfterReload(d, n)
	}
	return nil
}

func (d *Driver) Source(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.html, nil
}

func (d *Driver) Title(ctx context.Context) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Titles[d.url]
}

func (d *Driver) URL(ctx context.Context) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *Driver) Locate(ctx context.Context, selector string, timeout time.Duration) (engine.Element, error) {
	d.mu.Lock()
	d.locates++
	n := d.locates
	d.mu.Unlock()
	if d.BeforeLocate != nil {
		d.BeforeLocate(d, selector, n)
	}
	if d.LocateErr != nil {
		return nil, d.LocateErr
	}
	box, ok := d.Elements[selector]
	if !ok {
		return nil, ErrNotFound
	}
	return element(box), nil
}

func (d *Driver) Perform(ctx context.Context, g engine.Gesture) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.PerformErr != nil {
		return d.PerformErr
	}
	d.mu.Lock()
	d.gestures = append(d.gestures, g)
	n := len(d.gestures)
	d.mu.Unlock()
	if d.AfterPerform != nil {
		d.AfterPerform(d, n)
	}
	return nil
}

func (d *Driver) Quit() error {
	d.mu.Lock()
	d.quits++
	d.mu.Unlock()
	if d.QuitPanics {
		panic("enginetest: quit panic")
	}
	return d.QuitErr
}

// Navigations returns every URL navigated to, in order.
func (d *Driver) Navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navs...)
}

// Gestures returns every gesture performed, in order.
func (d *Driver) Gestures() []engine.Gesture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]engine.Gesture(nil), d.gestures...)
}

// Locates returns how many times Locate was called.
func (d *Driver) Locates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locates
}

// Reloads returns how many times Reload was called.
func (d *Driver) Reloads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reloads
}

// Quits returns how many times Quit was called.
func (d *Driver) Quits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quits
}

type element engine.Box

func (e element) Box(ctx context.Context) (engine.Box, error) {
	return engine.Box(e), nil
}

// Launcher hands out drivers from New, or fails with Err.
type Launcher struct {
	New func() *Driver
	Err error

	mu       sync.Mutex
	launched []*Driver
}

func (l *Launcher) Launch(ctx context.Context) (engine.Driver, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	d := l.New()
	l.mu.Lock()
	l.launched = append(l.launched, d)
	l.mu.Unlock()
	return d, nil
}

// Launched returns every driver handed out so far.
func (l *Launcher) Launched() []*Driver {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Driver(nil), l.launched...)
}
