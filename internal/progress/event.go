package progress

import (
	"errors"
	"fmt"
	"time"
)

// Type classifies an event for operators watching the live log.
type Type string

// Supported event types.
const (
	TypeLog     Type = "log"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Event is one progress message for a row of an execution. PID correlates
// all events of a single batch job; Row is the item's stable position
// from partitioning.
type Event struct {
	// PID is the execution identifier correlating all messages of one run.
	PID string
	// Row labels the originating work item; 0 for execution-level messages.
	Row int
	// Type classifies the message severity.
	Type Type
	// Message is the operator-facing text.
	Message string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
}

// NewEvent builds an Event stamped with the current UTC time.
func NewEvent(pid string, row int, typ Type, message string) Event {
	return Event{
		PID:     pid,
		Row:     row,
		Type:    typ,
		Message: message,
		TS:      time.Now().UTC(),
	}
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.PID == "" {
		return errors.New("pid is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Row < 0 {
		return errors.New("row must be >= 0")
	}
	if e.Message == "" {
		return errors.New("message is required")
	}
	switch e.Type {
	case TypeLog, TypeSuccess, TypeWarning, TypeError:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}
