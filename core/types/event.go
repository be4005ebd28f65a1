package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// NewEvent returns an event of the given type with an empty attribute set.
func NewEvent(eventType string) *Event {
	return &Event{Type: eventType, Attributes: map[string]string{}}
}

// With sets an attribute and returns the event for chaining.
func (e *Event) With(key, value string) *Event {
	if e.Attributes == nil {
		e.Attributes = map[string]string{}
	}
	e.Attributes[key] = value
	return e
}

// Attr returns the attribute value, or "" when absent.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
