package calendar

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
)

type WeekStart string

const (
	Monday WeekStart = "monday"
	Sunday WeekStart = "sunday"
)

// Config holds the user settings of the calendar plugin.
type Config struct {
	StartWeekOn     WeekStart `json:"startWeekOn"`
	ShowWeekNumbers bool      `json:"showWeekNumbers"`
	MonthsToDisplay int       `json:"monthsToDisplay"`
	HighlightToday  bool      `json:"highlightToday"`
	ScrollBehavior  string    `json:"scrollBehavior"`
	ColorScheme     string    `json:"colorScheme"`
}

var (
	scrollBehaviors = []string{"smooth", "instant"}
	colorSchemes    = []string{"default", "pastel", "vibrant"}
)

const (
	minMonths = 1
	maxMonths = 12
)

// DefaultConfig returns the settings used when the host has none.
func DefaultConfig() Config {
	return Config{
		StartWeekOn:     Monday,
		ShowWeekNumbers: false,
		MonthsToDisplay: 6,
		HighlightToday:  true,
		ScrollBehavior:  "smooth",
		ColorScheme:     "default",
	}
}

// Validate applies the same constraints as ConfigSchema, for hosts that
// cannot validate against a schema.
func (c Config) Validate() error {
	if c.StartWeekOn != Monday && c.StartWeekOn != Sunday {
		return fmt.Errorf("startWeekOn must be monday or sunday, got %q", c.StartWeekOn)
	}
	if c.MonthsToDisplay < minMonths || c.MonthsToDisplay > maxMonths {
		return fmt.Errorf("monthsToDisplay must be between %d and %d, got %d", minMonths, maxMonths, c.MonthsToDisplay)
	}
	if !slices.Contains(scrollBehaviors, c.ScrollBehavior) {
		return fmt.Errorf("scrollBehavior must be one of %v, got %q", scrollBehaviors, c.ScrollBehavior)
	}
	if !slices.Contains(colorSchemes, c.ColorScheme) {
		return fmt.Errorf("colorScheme must be one of %v, got %q", colorSchemes, c.ColorScheme)
	}
	return nil
}

func rawDefault(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func enumOf(values ...string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// ConfigSchema describes Config for host-side settings forms.
func ConfigSchema() *jsonschema.Schema {
	def := DefaultConfig()
	lo, hi := float64(minMonths), float64(maxMonths)

	return &jsonschema.Schema{
		Title:       "Calendar Configuration",
		Description: "Configure the linear calendar display and behavior",
		Type:        "object",
		Properties: map[string]*jsonschema.Schema{
			"startWeekOn": {
				Type:        "string",
				Title:       "Week starts on",
				Description: "First day of the week",
				Enum:        enumOf(string(Monday), string(Sunday)),
				Default:     rawDefault(def.StartWeekOn),
			},
			"showWeekNumbers": {
				Type:        "boolean",
				Title:       "Show week numbers",
				Description: "Display ISO week numbers in calendar",
				Default:     rawDefault(def.ShowWeekNumbers),
			},
			"monthsToDisplay": {
				Type:        "number",
				Title:       "Months to display",
				Description: "Number of months to load initially",
				Minimum:     &lo,
				Maximum:     &hi,
				Default:     rawDefault(def.MonthsToDisplay),
			},
			"highlightToday": {
				Type:        "boolean",
				Title:       "Highlight today",
				Description: "Visually highlight the current day",
				Default:     rawDefault(def.HighlightToday),
			},
			"scrollBehavior": {
				Type:        "string",
				Title:       "Scroll behavior",
				Description: "How calendar scrolls to dates",
				Enum:        enumOf(scrollBehaviors...),
				Default:     rawDefault(def.ScrollBehavior),
			},
			"colorScheme": {
				Type:        "string",
				Title:       "Color scheme",
				Description: "Monthly color rotation system",
				Enum:        enumOf(colorSchemes...),
				Default:     rawDefault(def.ColorScheme),
			},
		},
		Required: []string{"startWeekOn", "monthsToDisplay"},
	}
}
