package events

import "time"

// Kind is the discriminant tag of a stream event.
type Kind string

// Event is one element of a turn's outbound event stream.
type Event interface {
	Kind() Kind
	TurnID() string
	Timestamp() time.Time
}

// Base carries the fields shared by every event.
type Base struct {
	kind      Kind
	turnID    string
	timestamp time.Time
}

func NewBase(kind Kind, turnID string) Base {
	return Base{kind: kind, turnID: turnID, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) TurnID() string {
	return b.turnID
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
