package calendar

import (
	"context"
	"errors"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/linear"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/ui"
)

// ErrWidgetUnavailable is logged when the view renders without a widget
// factory.
var ErrWidgetUnavailable = errors.New("calendar widget not available")

// Widget is the scrolling calendar the view drives.
type Widget interface {
	SetMarkedDates(dates []string)
	MarkDate(date string)
	ScrollToDate(ctx context.Context, date string) error
	Destroy()
}

// WidgetFactory builds a widget mounted into c.
type WidgetFactory func(c *ui.Container, opts linear.Options) (Widget, error)

// LinearWidget is the WidgetFactory backed by the linear package.
func LinearWidget(c *ui.Container, opts linear.Options) (Widget, error) {
	cal, err := linear.New(c, opts)
	if err != nil {
		return nil, err
	}
	return cal, nil
}
