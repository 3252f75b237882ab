package models

// Calendar is a named collection of events, as exported to iCalendar.
type Calendar struct {
	Name        string
	Description string
	Events      []Event
}
