package dictation

import "context"

// CaptureConfig is what a session asks the platform engine for.
type CaptureConfig struct {
	Locale         string
	Continuous     bool
	InterimResults bool
}

type EventType int

const (
	// EventResult carries one recognition hypothesis, interim or final.
	EventResult EventType = iota
	// EventError reports a platform recognition error.
	EventError
	// EventEnd confirms the capture has ended.
	EventEnd
)

func (t EventType) String() string {
	switch t {
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Event is a callback from the platform capture engine.
type Event struct {
	Type  EventType
	Text  string
	Final bool
	Err   error
}

// Engine is the platform speech-recognition capability.
type Engine interface {
	// Available reports whether the platform can recognize speech at all.
	Available() bool
	// Open starts a capture. The returned handle streams events until the
	// capture ends.
	Open(ctx context.Context, cfg CaptureConfig) (Handle, error)
}

// Handle is one active capture.
type Handle interface {
	// Events is closed once the capture has ended.
	Events() <-chan Event
	// Stop asks the engine to end the capture. It must be safe to call more
	// than once.
	Stop() error
}
