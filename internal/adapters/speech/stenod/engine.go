package stenod

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/PabloGalante/chicha/internal/app/dictation"
	"github.com/PabloGalante/chicha/internal/observability"
)

const (
	probeTimeout = 2 * time.Second
	stopTimeout  = 5 * time.Second
)

// Engine opens captures on the daemon at SocketPath.
type Engine struct {
	SocketPath string
}

func NewEngine(socketPath string) *Engine {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}
	return &Engine{SocketPath: socketPath}
}

// Available reports whether the daemon answers a status command.
func (e *Engine) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	c, err := dial(ctx, e.SocketPath)
	if err != nil {
		return false
	}
	defer c.close()

	_, err = c.call(ctx, Command{Cmd: "status"})
	return err == nil
}

// Open subscribes to events on one connection and starts recording on a
// second one, mirroring how the daemon separates control from the stream.
func (e *Engine) Open(ctx context.Context, cfg dictation.CaptureConfig) (dictation.Handle, error) {
	events, err := dial(ctx, e.SocketPath)
	if err != nil {
		return nil, err
	}
	if _, err := events.call(ctx, Command{Cmd: "subscribe"}); err != nil {
		events.close()
		return nil, err
	}

	control, err := dial(ctx, e.SocketPath)
	if err != nil {
		events.close()
		return nil, err
	}
	if _, err := control.call(ctx, Command{Cmd: "start", Locale: cfg.Locale}); err != nil {
		events.close()
		control.close()
		return nil, err
	}

	h := &handle{
		control: control,
		stream:  events,
		events:  make(chan dictation.Event, 64),
		interim: cfg.InterimResults,
	}
	go h.read(observability.LoggerFromContext(ctx))
	return h, nil
}

type handle struct {
	control *conn
	stream  *conn
	events  chan dictation.Event
	interim bool

	stopOnce sync.Once
	stopErr  error

	segments int
}

func (h *handle) Events() <-chan dictation.Event {
	return h.events
}

func (h *handle) Stop() error {
	h.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()

		_, h.stopErr = h.control.call(ctx, Command{Cmd: "stop"})
		h.control.close()
		if h.stopErr != nil {
			// Without a stop acknowledgement no status event will follow.
			h.stream.close()
		}
	})
	return h.stopErr
}

// read turns daemon events into capture events until recording stops or
// the stream breaks.
func (h *handle) read(log *slog.Logger) {
	defer close(h.events)
	defer h.stream.close()

	for {
		ev, err := h.stream.next()
		if err != nil {
			if !errors.Is(err, errStreamClosed) {
				log.Debug("daemon stream ended", "error", err)
			}
			return
		}

		switch ev.Event {
		case EventPartial:
			if h.interim {
				h.events <- dictation.Event{Type: dictation.EventResult, Text: ev.Text}
			}
		case EventSegment:
			text := ev.Text
			// Segments arrive without separators.
			if h.segments > 0 && text != "" {
				text = " " + text
			}
			h.segments++
			h.events <- dictation.Event{Type: dictation.EventResult, Text: text, Final: true}
		case EventError:
			if ev.Transient != nil && *ev.Transient {
				log.Warn("transient daemon error", "message", ev.Message)
				continue
			}
			msg := ev.Message
			if msg == "" {
				msg = "daemon error"
			}
			h.events <- dictation.Event{Type: dictation.EventError, Err: errors.New(msg)}
		case EventStatus:
			if ev.Recording != nil && !*ev.Recording {
				h.events <- dictation.Event{Type: dictation.EventEnd}
				return
			}
		}
	}
}
