package application

import "github.com/bnema/agentmon/internal/domain"

type EventKind string

const (
	EventSessionChanged EventKind = "session_changed"
	EventSessionClosed  EventKind = "session_closed"
	EventSessionDeleted EventKind = "session_deleted"
	EventUsageChanged   EventKind = "usage_changed"
	EventWarning        EventKind = "warning"
	EventShutdown       EventKind = "shutdown"
)

type Event struct {
	Kind      EventKind
	Session   *SessionView
	SessionID string
	Usage     *domain.Usage
	Code      Code
	Message   string
	Reason    string
}

func ShutdownEvent(reason string) Event {
	return Event{Kind: EventShutdown, Reason: reason}
}
