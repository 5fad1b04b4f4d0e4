package stenod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"
)

// DefaultSocketPath is where the daemon listens unless configured otherwise.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "steno.sock")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".steno", "steno.sock")
}

// CommandError is a command the daemon answered with ok=false.
type CommandError struct {
	Cmd     string
	Message string
}

func (e *CommandError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "command failed"
	}
	return fmt.Sprintf("daemon %s: %s", e.Cmd, msg)
}

var errStreamClosed = errors.New("daemon closed the stream")

// conn is one NDJSON connection to the daemon. A conn is either used for
// request/response commands or, after subscribe, only for reading events.
type conn struct {
	nc  net.Conn
	enc *json.Encoder
	dec *json.Decoder
}

func dial(ctx context.Context, socketPath string) (*conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	// json.Encoder terminates every value with a newline.
	return &conn{nc: nc, enc: json.NewEncoder(nc), dec: json.NewDecoder(nc)}, nil
}

func (c *conn) close() error {
	return c.nc.Close()
}

// call sends cmd and waits for its answer, bounded by ctx's deadline.
func (c *conn) call(ctx context.Context, cmd Command) (Response, error) {
	if dl, ok := ctx.Deadline(); ok {
		c.nc.SetDeadline(dl)
		defer c.nc.SetDeadline(time.Time{})
	}

	if err := c.enc.Encode(cmd); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", cmd.Cmd, err)
	}

	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", cmd.Cmd, eofAsClosed(err))
	}
	if !resp.OK {
		return resp, &CommandError{Cmd: cmd.Cmd, Message: resp.Error}
	}
	return resp, nil
}

// next blocks for the next streamed event.
func (c *conn) next() (Event, error) {
	var ev Event
	if err := c.dec.Decode(&ev); err != nil {
		return Event{}, eofAsClosed(err)
	}
	return ev, nil
}

func eofAsClosed(err error) error {
	if errors.Is(err, io.EOF) {
		return errStreamClosed
	}
	return err
}
