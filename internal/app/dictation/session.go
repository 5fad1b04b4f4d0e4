// Package dictation wraps a platform speech-recognition engine into a
// restartable capture session with an accumulated transcript.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PabloGalante/chicha/internal/domain"
	"github.com/PabloGalante/chicha/internal/observability"
)

type State int

const (
	StateIdle State = iota
	StateListening
	StateErroring
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateErroring:
		return "erroring"
	default:
		return "unknown"
	}
}

const (
	DefaultLocale = "en-US"

	unsupportedMessage = "Speech recognition is not supported on this platform."
	closeTimeout       = 2 * time.Second
)

var ErrClosed = errors.New("dictation session closed")

// Snapshot is the observable state of a session.
type Snapshot struct {
	State             State  `json:"-"`
	IsListening       bool   `json:"is_listening"`
	IsError           bool   `json:"is_error"`
	ErrorMessage      string `json:"error_message,omitempty"`
	Transcript        string `json:"transcript"`
	InterimTranscript string `json:"interim_transcript"`
}

// TranscriptUpdate is pushed every time the final transcript grows.
type TranscriptUpdate struct {
	Transcript string // everything finalized in the current listening period
	Segment    string // the result that was just finalized
}

type Option func(*Session)

// WithLocale sets the recognition locale (BCP 47, e.g. "hi-IN").
func WithLocale(locale string) Option {
	return func(s *Session) {
		if locale != "" {
			s.cfg.Locale = locale
		}
	}
}

// Session is a restartable dictation capture. At most one engine handle is
// active at a time; state only changes through Start, Stop, Close and
// engine events.
type Session struct {
	engine Engine
	cfg    CaptureConfig

	// lifecycle serializes Start, Stop and Close.
	lifecycle sync.Mutex

	mu          sync.Mutex
	state       State
	unsupported bool
	final       string
	interim     string
	lastErr     error
	errMessage  string
	handle      Handle
	done        chan struct{}
	generation  uint64
	closed      bool

	onTranscript []func(TranscriptUpdate)
	onError      []func(error)
	onState      []func(State)
}

// NewSession checks the engine once. A missing engine or capability is a
// permanent error for this session.
func NewSession(engine Engine, opts ...Option) *Session {
	s := &Session{
		engine: engine,
		cfg: CaptureConfig{
			Locale:         DefaultLocale,
			Continuous:     true,
			InterimResults: true,
		},
	}
	for _, o := range opts {
		o(s)
	}

	if engine == nil || !engine.Available() {
		s.unsupported = true
		s.state = StateErroring
		s.lastErr = domain.ErrCapabilityUnavailable
		s.errMessage = unsupportedMessage
	}
	return s
}

// OnTranscript registers a consumer for finalized text.
func (s *Session) OnTranscript(fn func(TranscriptUpdate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTranscript = append(s.onTranscript, fn)
}

// OnError registers a consumer for recognition errors.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, fn)
}

// OnStateChange registers a consumer for state transitions.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = append(s.onState, fn)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:             s.state,
		IsListening:       s.state == StateListening,
		IsError:           s.state == StateErroring,
		ErrorMessage:      s.errMessage,
		Transcript:        s.final,
		InterimTranscript: s.interim,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error that put the session in StateErroring, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start opens a new listening period. It is a no-op while already listening.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.unsupported {
		s.mu.Unlock()
		return domain.ErrCapabilityUnavailable
	}
	if s.state == StateListening {
		s.mu.Unlock()
		return nil
	}
	prev, prevDone := s.handle, s.done
	s.mu.Unlock()

	// An errored period may still hold its handle until the engine confirms
	// the end.
	if prev != nil {
		_ = prev.Stop()
		waitDone(ctx, prevDone)
	}

	log := observability.LoggerFromContext(ctx).With("locale", s.cfg.Locale)

	s.mu.Lock()
	s.final = ""
	s.interim = ""
	s.lastErr = nil
	s.errMessage = ""
	s.handle = nil
	s.done = nil
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	h, err := s.engine.Open(ctx, s.cfg)
	if err != nil {
		log.Error("dictation open failed", "error", err)
		s.fail(gen, err)
		return fmt.Errorf("%w: %v", domain.ErrRecognition, err)
	}

	done := make(chan struct{})

	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		_ = h.Stop()
		return ErrClosed
	}
	s.handle = h
	s.done = done
	s.state = StateListening
	stateFns := s.onState
	s.mu.Unlock()

	go s.pump(gen, h, done)

	log.Info("dictation started")
	fire(stateFns, StateListening)
	return nil
}

// Stop ends the current listening period and waits for the engine to
// confirm. The final transcript is left untouched.
func (s *Session) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state != StateListening || s.handle == nil {
		s.mu.Unlock()
		return nil
	}
	h, done := s.handle, s.done
	s.mu.Unlock()

	if err := h.Stop(); err != nil {
		return fmt.Errorf("stopping capture: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the capture handle. Events that arrive afterwards are
// dropped.
func (s *Session) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	h, done := s.handle, s.done
	s.mu.Unlock()

	if h == nil {
		return nil
	}

	err := h.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	waitDone(ctx, done)

	return err
}

func (s *Session) pump(gen uint64, h Handle, done chan struct{}) {
	defer close(done)

	for ev := range h.Events() {
		switch ev.Type {
		case EventResult:
			s.applyResult(gen, ev)
		case EventError:
			if s.applyError(gen, ev.Err) {
				_ = h.Stop()
			}
		case EventEnd:
			s.applyEnd(gen)
		}
	}

	// A closed stream counts as an end confirmation.
	s.applyEnd(gen)
}

func (s *Session) applyResult(gen uint64, ev Event) {
	s.mu.Lock()
	if s.closed || gen != s.generation || s.state != StateListening {
		s.mu.Unlock()
		return
	}

	if !ev.Final {
		s.interim = ev.Text
		s.mu.Unlock()
		return
	}

	s.final += ev.Text
	s.interim = ""
	update := TranscriptUpdate{Transcript: s.final, Segment: ev.Text}
	fns := s.onTranscript
	s.mu.Unlock()

	if update.Transcript == "" {
		return
	}
	for _, fn := range fns {
		fn(update)
	}
}

// applyError reports whether the error was applied.
func (s *Session) applyError(gen uint64, cause error) bool {
	if cause == nil {
		cause = errors.New("unknown recognition error")
	}

	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return false
	}
	s.state = StateErroring
	s.interim = ""
	s.lastErr = fmt.Errorf("%w: %v", domain.ErrRecognition, cause)
	s.errMessage = cause.Error()
	err := s.lastErr
	errFns, stateFns := s.onError, s.onState
	s.mu.Unlock()

	observability.Logger().Warn("dictation recognition error", "error", cause)

	for _, fn := range errFns {
		fn(err)
	}
	fire(stateFns, StateErroring)
	return true
}

func (s *Session) applyEnd(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.handle == nil {
		s.mu.Unlock()
		return
	}
	s.handle = nil
	if s.closed || s.state != StateListening {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.interim = ""
	stateFns := s.onState
	s.mu.Unlock()

	fire(stateFns, StateIdle)
}

// fail records an error that happened before a handle existed.
func (s *Session) fail(gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.state = StateErroring
	s.lastErr = fmt.Errorf("%w: %v", domain.ErrRecognition, cause)
	s.errMessage = cause.Error()
	err := s.lastErr
	errFns, stateFns := s.onError, s.onState
	s.mu.Unlock()

	for _, fn := range errFns {
		fn(err)
	}
	fire(stateFns, StateErroring)
}

func fire(fns []func(State), st State) {
	for _, fn := range fns {
		fn(st)
	}
}

func waitDone(ctx context.Context, done <-chan struct{}) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}
