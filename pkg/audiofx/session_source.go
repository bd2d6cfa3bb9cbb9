package audiofx

// SessionEventType tells whether an audio session opened or closed
type SessionEventType int

const (
	SessionOpened SessionEventType = iota
	SessionClosed
)

func (t SessionEventType) String() string {
	if t == SessionOpened {
		return "opened"
	}
	return "closed"
}

// SessionEvent is one open/close notification from the platform audio server.
// ID is positive for real sessions.
type SessionEvent struct {
	Type SessionEventType
	ID   int
	Name string
}

// SessionSource emits session lifecycle events for the current output
type SessionSource interface {
	SubscribeToSessionEvents() <-chan SessionEvent
	Release() error
}

const sessionEventChanSize = 100

// media roles that never get effects attached
var ignoredMediaRoles = []string{"event", "phone", "notification", "a11y"}
