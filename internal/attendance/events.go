package attendance

import (
	"context"
	"time"
)

// EventMarked is published after a successful verification.
const EventMarked = "attendance.marked"

// Event is an audit entry for a recorded mark.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	SessionID  string    `json:"sessionId"`
	Subject    string    `json:"subject"`
	StudentUID string    `json:"studentUid"`
	Distance   float64   `json:"distance"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher hands events to an asynchronous consumer.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// EventLog stores events. AppendEvent is idempotent on Event.ID.
type EventLog interface {
	AppendEvent(ctx context.Context, evt Event) error
	ListEvents(ctx context.Context, sessionID string, limit int) ([]Event, error)
}
