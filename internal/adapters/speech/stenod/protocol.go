// Package stenod drives a local transcription daemon over a Unix socket
// speaking newline-delimited JSON, and exposes it as a dictation.Engine.
package stenod

// Command is sent to the daemon.
type Command struct {
	Cmd    string `json:"cmd"`
	Locale string `json:"locale,omitempty"`
}

// Response answers one command.
type Response struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"sessionId,omitempty"`
	Recording *bool  `json:"recording,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Event is streamed to subscribed clients.
type Event struct {
	Event     string `json:"event"`
	Text      string `json:"text,omitempty"`
	Message   string `json:"message,omitempty"`
	Transient *bool  `json:"transient,omitempty"`
	Recording *bool  `json:"recording,omitempty"`
}

const (
	EventPartial = "partial"
	EventSegment = "segment"
	EventStatus  = "status"
	EventError   = "error"
)
