package httpadapter

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/PabloGalante/chicha/internal/adapters/speech/browser"
	"github.com/PabloGalante/chicha/internal/app/dictation"
	"github.com/PabloGalante/chicha/internal/observability"
)

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	return s.origins[origin]
}

// handleDictation upgrades to the browser speech bridge. The page's
// recognizer drives a dictation session attached to the composer until the
// socket closes.
func (s *Server) handleDictation(w http.ResponseWriter, r *http.Request) {
	ctx, id := sessionContext(r)
	log := observability.LoggerFromContext(ctx)

	c, err := s.conv.Composer(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("dictation upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	bridge, err := browser.Accept(conn)
	if err != nil {
		log.Warn("dictation handshake failed", "error", err)
		return
	}

	sess := c.AttachDictation(bridge, dictation.WithLocale(s.locale))
	defer c.DetachDictation(sess)

	push := func() {
		snap := sess.Snapshot()
		if err := bridge.Send(browser.Outbound{Type: browser.TypeState, Snapshot: &snap}); err != nil {
			log.Debug("dictation state push failed", "error", err)
		}
	}
	sess.OnStateChange(func(dictation.State) { push() })
	sess.OnTranscript(func(dictation.TranscriptUpdate) { push() })
	push()

	log.Info("dictation bridge connected", "supported", bridge.Available())

	err = bridge.Run(ctx, func(ctx context.Context, cmd string) {
		switch cmd {
		case browser.TypeStart:
			if err := sess.Start(ctx); err != nil {
				log.Warn("dictation start failed", "error", err)
				push()
			}
		case browser.TypeStop:
			if err := sess.Stop(ctx); err != nil {
				log.Warn("dictation stop failed", "error", err)
			}
		}
	})
	if err != nil {
		log.Warn("dictation bridge closed", "error", err)
		return
	}
	log.Info("dictation bridge closed")
}
