// Package browser bridges a page's Web Speech API to dictation.Engine over
// a WebSocket. The page owns the microphone; the server owns the session
// state.
package browser

import "github.com/PabloGalante/chicha/internal/app/dictation"

// Frame types sent by the page.
const (
	TypeHello  = "hello"  // first frame: {supported}
	TypeStart  = "start"  // user pressed the mic button
	TypeStop   = "stop"   // user released it
	TypeResult = "result" // {text, final}
	TypeError  = "error"  // {error}: a Web Speech error code such as "no-speech"
	TypeEnd    = "end"    // the recognizer stopped
)

// Frame types sent by the server.
const (
	TypeCapture = "capture" // {action: start|stop, locale, continuous, interim_results}
	TypeState   = "state"   // {snapshot}
)

// Inbound is a frame from the page.
type Inbound struct {
	Type      string `json:"type"`
	Supported bool   `json:"supported,omitempty"`
	Text      string `json:"text,omitempty"`
	Final     bool   `json:"final,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Outbound is a frame to the page.
type Outbound struct {
	Type           string              `json:"type"`
	Action         string              `json:"action,omitempty"`
	Locale         string              `json:"locale,omitempty"`
	Continuous     bool                `json:"continuous,omitempty"`
	InterimResults bool                `json:"interim_results,omitempty"`
	Snapshot       *dictation.Snapshot `json:"snapshot,omitempty"`
}
