package browser_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/chicha/internal/adapters/speech/browser"
	"github.com/PabloGalante/chicha/internal/app/dictation"
)

type served struct {
	segments chan string
	errs     chan error
	done     chan error
}

func startBridge(t *testing.T) (*websocket.Conn, *served) {
	t.Helper()

	out := &served{
		segments: make(chan string, 8),
		errs:     make(chan error, 8),
		done:     make(chan error, 1),
	}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		bridge, err := browser.Accept(conn)
		if err != nil {
			out.done <- err
			return
		}
		sess := dictation.NewSession(bridge)
		defer sess.Close()
		sess.OnTranscript(func(u dictation.TranscriptUpdate) { out.segments <- u.Segment })
		sess.OnError(func(err error) { out.errs <- err })

		out.done <- bridge.Run(r.Context(), func(ctx context.Context, cmd string) {
			switch cmd {
			case browser.TypeStart:
				_ = sess.Start(ctx)
			case browser.TypeStop:
				_ = sess.Stop(ctx)
			}
		})
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, out
}

func readCapture(t *testing.T, conn *websocket.Conn) browser.Outbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f browser.Outbound
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, browser.TypeCapture, f.Type)
	return f
}

func TestBridgeCaptureRoundTrip(t *testing.T) {
	conn, out := startBridge(t)

	require.NoError(t, conn.WriteJSON(browser.Inbound{Type: browser.TypeHello, Supported: true}))
	require.NoError(t, conn.WriteJSON(browser.Inbound{Type: browser.TypeStart}))

	start := readCapture(t, conn)
	require.Equal(t, "start", start.Action)
	require.Equal(t, "en-US", start.Locale)
	require.True(t, start.Continuous)
	require.True(t, start.InterimResults)

	require.NoError(t, conn.WriteJSON(browser.Inbound{Type: browser.TypeResult, Text: "weather in"}))
	require.NoError(t, conn.WriteJSON(browser.Inbound{Type: browser.TypeResult, Text: "weather in Pune", Final: true}))

	select {
	case seg := <-out.segments:
		require.Equal(t, "weather in Pune", seg)
	case <-time.After(2 * time.Second):
		t.Fatal("no transcript update")
	}

	require.NoError(t, conn.WriteJSON(browser.Inbound{Type: browser.TypeStop}))
	require.Equal(t, "stop", readCapture(t, conn).Action)
	require.NoError(t, conn.WriteJSON(browser.Inbound{Type: browser.TypeEnd}))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	select {
	case err := <-out.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestBridgeForwardsRecognitionErrors(t *testing.T) {
	conn, out := startBridge(t)

	require.NoError(t, conn.WriteJSON(browser.Inbound{Type: browser.TypeHello, Supported: true}))
	require.NoError(t, conn.WriteJSON(browser.Inbound{Type: browser.TypeStart}))
	readCapture(t, conn)

	require.NoError(t, conn.WriteJSON(browser.Inbound{Type: browser.TypeError, Error: "no-speech"}))

	select {
	case err := <-out.errs:
		require.ErrorContains(t, err, "no-speech")
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}

	// The session stops the errored capture.
	require.Equal(t, "stop", readCapture(t, conn).Action)
}

func TestBridgeUnsupportedPage(t *testing.T) {
	conn, out := startBridge(t)

	require.NoError(t, conn.WriteJSON(browser.Inbound{Type: browser.TypeHello, Supported: false}))
	require.NoError(t, conn.WriteJSON(browser.Inbound{Type: browser.TypeStart}))

	// No capture is requested; the page only sees the connection close.
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	conn.Close()
	select {
	case <-out.done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestAcceptRejectsMissingHello(t *testing.T) {
	conn, out := startBridge(t)

	require.NoError(t, conn.WriteJSON(browser.Inbound{Type: browser.TypeStart}))

	select {
	case err := <-out.done:
		require.ErrorContains(t, err, "hello")
	case <-time.After(2 * time.Second):
		t.Fatal("accept did not fail")
	}
}
