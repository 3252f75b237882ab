package ui

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"sync"
)

// ErrNotInteractive is returned when input is dispatched to an element that
// does not accept it.
var ErrNotInteractive = errors.New("element does not accept input")

// Element is anything a route can hand back to the host for display.
type Element interface {
	HTML() template.HTML
}

// Interactive elements accept browser input forwarded by the host.
type Interactive interface {
	Dispatch(ctx context.Context, action string, args url.Values) error
}

// Document is an element served as a raw download instead of a page.
type Document struct {
	ContentType string
	Filename    string
	Body        []byte
}

func (d *Document) HTML() template.HTML {
	return template.HTML("<pre>" + template.HTMLEscapeString(string(d.Body)) + "</pre>")
}

// ErrorMessage is an inline error shown in place of a view.
type ErrorMessage string

func (m ErrorMessage) HTML() template.HTML {
	return template.HTML(`<div class="error">` + template.HTMLEscapeString(string(m)) + `</div>`)
}

// Input describes the pointer event that triggered an action.
type Input struct {
	Button int  `json:"button"`
	Alt    bool `json:"altKey"`
	Ctrl   bool `json:"ctrlKey"`
	Meta   bool `json:"metaKey"`
	Shift  bool `json:"shiftKey"`
}

// InputFromArgs reads the pointer state posted alongside an action.
func InputFromArgs(args url.Values) Input {
	button, _ := strconv.Atoi(args.Get("button"))
	flag := func(k string) bool {
		v, _ := strconv.ParseBool(args.Get(k))
		return v
	}
	return Input{
		Button: button,
		Alt:    flag("altKey"),
		Ctrl:   flag("ctrlKey"),
		Meta:   flag("metaKey"),
		Shift:  flag("shiftKey"),
	}
}

// Container is the mount point a view renders into. A container holds at
// most one child element or an error message.
type Container struct {
	ID    string
	Class string

	mu    sync.RWMutex
	child Element
	err   string
}

func NewContainer(id, class string) *Container {
	return &Container{ID: id, Class: class}
}

// Mount replaces the container content with e.
func (c *Container) Mount(e Element) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.child = e
	c.err = ""
}

// Unmount drops the child if it is still e.
func (c *Container) Unmount(e Element) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.child == e {
		c.child = nil
	}
}

// SetError replaces the container content with an error message.
func (c *Container) SetError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.child = nil
	c.err = msg
}

// Err returns the error message shown by the container, if any.
func (c *Container) Err() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Child returns the mounted element.
func (c *Container) Child() Element {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.child
}

func (c *Container) HTML() template.HTML {
	c.mu.RLock()
	child, msg := c.child, c.err
	c.mu.RUnlock()

	var inner template.HTML
	switch {
	case msg != "":
		inner = ErrorMessage(msg).HTML()
	case child != nil:
		inner = child.HTML()
	}
	return template.HTML(fmt.Sprintf(`<div id="%s" class="%s">%s</div>`,
		template.HTMLEscapeString(c.ID), template.HTMLEscapeString(c.Class), inner))
}

// Dispatch forwards input to the mounted child.
func (c *Container) Dispatch(ctx context.Context, action string, args url.Values) error {
	in, ok := c.Child().(Interactive)
	if !ok {
		return fmt.Errorf("container %s: %w", c.ID, ErrNotInteractive)
	}
	return in.Dispatch(ctx, action, args)
}
