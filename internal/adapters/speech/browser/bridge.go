package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PabloGalante/chicha/internal/app/dictation"
	"github.com/PabloGalante/chicha/internal/observability"
)

const (
	writeWait = 10 * time.Second
	helloWait = 10 * time.Second
	eventBuf  = 64
)

var errBridgeClosed = errors.New("browser bridge closed")

// Bridge is a dictation.Engine backed by one page connection.
type Bridge struct {
	conn      *websocket.Conn
	supported bool

	writeMu sync.Mutex

	mu      sync.Mutex
	current *handle
	closed  bool
}

// Accept reads the page's hello frame and returns a bridge for conn.
func Accept(conn *websocket.Conn) (*Bridge, error) {
	conn.SetReadDeadline(time.Now().Add(helloWait))
	var hello Inbound
	if err := conn.ReadJSON(&hello); err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if hello.Type != TypeHello {
		return nil, fmt.Errorf("expected %q frame, got %q", TypeHello, hello.Type)
	}
	return &Bridge{conn: conn, supported: hello.Supported}, nil
}

// Available reports what the page said about its recognizer.
func (b *Bridge) Available() bool {
	return b.supported
}

// Open asks the page to start capturing. A capture still open on this
// bridge is ended first.
func (b *Bridge) Open(_ context.Context, cfg dictation.CaptureConfig) (dictation.Handle, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errBridgeClosed
	}
	prev := b.current
	h := &handle{bridge: b, events: make(chan dictation.Event, eventBuf)}
	b.current = h
	b.mu.Unlock()

	if prev != nil {
		prev.end()
	}

	err := b.Send(Outbound{
		Type:           TypeCapture,
		Action:         "start",
		Locale:         cfg.Locale,
		Continuous:     cfg.Continuous,
		InterimResults: cfg.InterimResults,
	})
	if err != nil {
		h.end()
		return nil, err
	}
	return h, nil
}

// Send writes one frame to the page.
func (b *Bridge) Send(f Outbound) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := b.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	return nil
}

// Run reads page frames until the connection closes or ctx is done.
// Recognition frames feed the open capture; start and stop frames are
// handed to onCommand one at a time on a separate goroutine, so a command
// may block on recognition frames still to come.
func (b *Bridge) Run(ctx context.Context, onCommand func(ctx context.Context, cmd string)) error {
	log := observability.LoggerFromContext(ctx)

	commands := make(chan string, 8)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for cmd := range commands {
			onCommand(ctx, cmd)
		}
	}()

	stop := context.AfterFunc(ctx, func() { b.conn.Close() })
	defer stop()

	var err error
	for {
		var f Inbound
		if err = b.conn.ReadJSON(&f); err != nil {
			break
		}

		switch f.Type {
		case TypeStart, TypeStop:
			select {
			case commands <- f.Type:
			default:
				log.Warn("dropping dictation command, queue full", "command", f.Type)
			}
		case TypeResult:
			b.deliver(dictation.Event{Type: dictation.EventResult, Text: f.Text, Final: f.Final})
		case TypeError:
			code := f.Error
			if code == "" {
				code = "unknown"
			}
			b.deliver(dictation.Event{Type: dictation.EventError, Err: errors.New(code)})
		case TypeEnd:
			b.endCurrent()
		default:
			log.Debug("ignoring dictation frame", "type", f.Type)
		}
	}

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.endCurrent()

	close(commands)
	wg.Wait()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
		return nil
	}
	return err
}

func (b *Bridge) deliver(ev dictation.Event) {
	b.mu.Lock()
	h := b.current
	b.mu.Unlock()

	if h != nil {
		h.send(ev)
	}
}

func (b *Bridge) endCurrent() {
	b.mu.Lock()
	h := b.current
	b.current = nil
	b.mu.Unlock()

	if h != nil {
		h.end()
	}
}

type handle struct {
	bridge *Bridge
	events chan dictation.Event

	mu       sync.Mutex
	ended    bool
	stopOnce sync.Once
}

func (h *handle) Events() <-chan dictation.Event {
	return h.events
}

// Stop asks the page to stop. The capture ends when the page confirms; if
// the request cannot be written the capture ends right away.
func (h *handle) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		if err = h.bridge.Send(Outbound{Type: TypeCapture, Action: "stop"}); err != nil {
			h.bridge.mu.Lock()
			if h.bridge.current == h {
				h.bridge.current = nil
			}
			h.bridge.mu.Unlock()
			h.end()
		}
	})
	return err
}

func (h *handle) send(ev dictation.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ended {
		return
	}
	select {
	case h.events <- ev:
	default:
		// The session pump is stalled; interim results are expendable.
		if ev.Type != dictation.EventResult || ev.Final {
			h.events <- ev
		}
	}
}

func (h *handle) end() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ended {
		return
	}
	h.ended = true
	close(h.events)
}
