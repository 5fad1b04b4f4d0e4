package stenod

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/chicha/internal/app/dictation"
)

// mockDaemon answers every command with ok and, once a client subscribes
// and another one sends start, streams script to the subscriber. A stop
// command ends recording with a status event.
type mockDaemon struct {
	path   string
	script []Event

	mu       sync.Mutex
	commands []Command
	sub      net.Conn
	startErr string
}

func startMockDaemon(t *testing.T, script []Event, startErr string) *mockDaemon {
	t.Helper()

	d := &mockDaemon{
		path:     filepath.Join(t.TempDir(), "steno.sock"),
		script:   script,
		startErr: startErr,
	}
	ln, err := net.Listen("unix", d.path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go d.serve(conn)
		}
	}()
	return d
}

func (d *mockDaemon) serve(conn net.Conn) {
	defer func() {
		d.mu.Lock()
		isSub := d.sub == conn
		d.mu.Unlock()
		if !isSub {
			conn.Close()
		}
	}()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		var cmd Command
		if err := json.Unmarshal(sc.Bytes(), &cmd); err != nil {
			return
		}

		d.mu.Lock()
		d.commands = append(d.commands, cmd)
		startErr := d.startErr
		d.mu.Unlock()

		resp := Response{OK: true}
		if cmd.Cmd == "start" && startErr != "" {
			resp = Response{Error: startErr}
		}

		if cmd.Cmd == "subscribe" {
			d.mu.Lock()
			d.sub = conn
			d.mu.Unlock()
			d.write(conn, resp)
			return
		}
		d.write(conn, resp)

		switch cmd.Cmd {
		case "start":
			if resp.OK {
				for _, ev := range d.script {
					d.publish(ev)
				}
			}
		case "stop":
			off := false
			d.publish(Event{Event: EventStatus, Recording: &off})
		}
	}
}

func (d *mockDaemon) publish(ev Event) {
	d.mu.Lock()
	sub := d.sub
	d.mu.Unlock()
	if sub != nil {
		d.write(sub, ev)
	}
}

func (d *mockDaemon) write(conn net.Conn, v any) {
	data, _ := json.Marshal(v)
	conn.Write(append(data, '\n'))
}

func (d *mockDaemon) cmds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, c := range d.commands {
		out = append(out, c.Cmd)
	}
	return out
}

func TestEngineAvailable(t *testing.T) {
	d := startMockDaemon(t, nil, "")

	require.True(t, NewEngine(d.path).Available())
	require.False(t, NewEngine(filepath.Join(t.TempDir(), "missing.sock")).Available())
}

func TestEngineStreamsSegmentsIntoSession(t *testing.T) {
	transient := true
	d := startMockDaemon(t, []Event{
		{Event: EventPartial, Text: "what is"},
		{Event: EventSegment, Text: "What is the weather"},
		{Event: EventError, Message: "buffer overrun", Transient: &transient},
		{Event: EventSegment, Text: "in Pune?"},
	}, "")

	sess := dictation.NewSession(NewEngine(d.path), dictation.WithLocale("en-IN"))
	defer sess.Close()

	var mu sync.Mutex
	var segments []string
	sess.OnTranscript(func(u dictation.TranscriptUpdate) {
		mu.Lock()
		segments = append(segments, u.Segment)
		mu.Unlock()
	})

	require.NoError(t, sess.Start(context.Background()))
	require.Eventually(t, func() bool {
		return sess.Snapshot().Transcript == "What is the weather in Pune?"
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sess.Stop(ctx))
	require.Equal(t, dictation.StateIdle, sess.State())

	mu.Lock()
	require.Equal(t, []string{"What is the weather", " in Pune?"}, segments)
	mu.Unlock()

	require.Equal(t, []string{"status", "subscribe", "start", "stop"}, d.cmds())
}

func TestEngineReportsDaemonErrors(t *testing.T) {
	d := startMockDaemon(t, []Event{{Event: EventError, Message: "microphone unavailable"}}, "")

	sess := dictation.NewSession(NewEngine(d.path))
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background()))
	require.Eventually(t, func() bool {
		return sess.State() == dictation.StateErroring
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "microphone unavailable", sess.Snapshot().ErrorMessage)
}

func TestEngineStartRefused(t *testing.T) {
	d := startMockDaemon(t, nil, "already recording")

	_, err := NewEngine(d.path).Open(context.Background(), dictation.CaptureConfig{})
	require.ErrorContains(t, err, "already recording")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, "start", cmdErr.Cmd)
}

func TestCallReportsHangUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steno.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		// Read the command, then leave without answering.
		bufio.NewReader(nc).ReadString('\n')
		nc.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := dial(ctx, path)
	require.NoError(t, err)
	defer c.close()

	_, err = c.call(ctx, Command{Cmd: "status"})
	require.ErrorIs(t, err, errStreamClosed)
}
