package model

import "time"

// Timestamp is a Unix time in milliseconds, the wire format clients expect.
type Timestamp int64

// NewTimestamp converts t to a millisecond Timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return NewTimestamp(time.Now())
}

// Time converts the timestamp back to a time.Time.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t))
}

// EventType discriminates the Event union.
type EventType string

const (
	EventOutput    EventType = "output"
	EventStatus    EventType = "status"
	EventError     EventType = "error"
	EventConnected EventType = "connected"
)

// Event is a message streamed to workspace subscribers. Exactly the fields
// belonging to Type are set:
//
//	output    → Data
//	status    → Status
//	error     → Error
//	connected → WorkspaceID
type Event struct {
	Type        EventType `json:"type"`
	Data        string    `json:"data,omitempty"`
	Status      Status    `json:"status,omitempty"`
	Error       string    `json:"error,omitempty"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
	Timestamp   Timestamp `json:"timestamp"`
}

// OutputEvent carries newly captured terminal output.
func OutputEvent(data string) Event {
	return Event{Type: EventOutput, Data: data, Timestamp: Now()}
}

// StatusEvent announces a workspace status change.
func StatusEvent(status Status) Event {
	return Event{Type: EventStatus, Status: status, Timestamp: Now()}
}

// ErrorEvent reports a background failure.
func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Error: msg, Timestamp: Now()}
}

// ConnectedEvent acknowledges a new stream subscription.
func ConnectedEvent(workspaceID string) Event {
	return Event{Type: EventConnected, WorkspaceID: workspaceID, Timestamp: Now()}
}
