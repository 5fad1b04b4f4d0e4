package dispatch

import "fmt"

type PhaseState int

const (
	PhaseIdle PhaseState = iota
	PhaseUploading
	PhaseInferring
	PhaseDone
	PhaseFailed
)

// Phase tracks a plain-chat send: Idle → Uploading(i/N) → Inferring →
// Done or Failed. A failed upload never reaches Inferring.
type Phase struct {
	State    PhaseState
	Uploaded int
	Total    int
}

func (p Phase) String() string {
	switch p.State {
	case PhaseIdle:
		return "idle"
	case PhaseUploading:
		return fmt.Sprintf("uploading(%d/%d)", p.Uploaded, p.Total)
	case PhaseInferring:
		return "inferring"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}
