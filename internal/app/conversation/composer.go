package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/PabloGalante/chicha/internal/app/dictation"
	"github.com/PabloGalante/chicha/internal/app/dispatch"
	"github.com/PabloGalante/chicha/internal/app/notify"
	"github.com/PabloGalante/chicha/internal/domain"
	"github.com/PabloGalante/chicha/internal/observability"
)

// Composer is the live input state of one chat: the dispatcher with its
// input buffer and attachment queue, the notification inbox, and an
// optional dictation session feeding the input.
type Composer struct {
	SessionID  domain.SessionID
	Dispatcher *dispatch.Dispatcher
	Inbox      *notify.Inbox

	mu        sync.Mutex
	dictation *dictation.Session
}

// AttachDictation starts using engine for voice input, replacing (and
// closing) any previous dictation session. Finalized segments are appended
// to the input buffer; recognition errors become notifications.
func (c *Composer) AttachDictation(engine dictation.Engine, opts ...dictation.Option) *dictation.Session {
	sess := dictation.NewSession(engine, opts...)

	sess.OnTranscript(func(u dictation.TranscriptUpdate) {
		c.Dispatcher.AppendInput(u.Segment)
	})
	sess.OnError(func(err error) {
		desc := sess.Snapshot().ErrorMessage
		if desc == "" {
			desc = "An error occurred with speech recognition"
		}
		c.Inbox.Notify(observability.WithSessionID(context.Background(), string(c.SessionID)), domain.Notification{
			Kind:        domain.NotificationDestructive,
			Title:       "Speech Recognition Error",
			Description: desc,
			CreatedAt:   time.Now(),
		})
	})

	c.mu.Lock()
	prev := c.dictation
	c.dictation = sess
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return sess
}

// Dictation returns the attached dictation session, or nil.
func (c *Composer) Dictation() *dictation.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dictation
}

// DetachDictation closes the dictation session if it is still sess.
func (c *Composer) DetachDictation(sess *dictation.Session) {
	c.mu.Lock()
	if c.dictation != sess {
		c.mu.Unlock()
		return
	}
	c.dictation = nil
	c.mu.Unlock()

	_ = sess.Close()
}

func (c *Composer) Close() {
	c.mu.Lock()
	d := c.dictation
	c.dictation = nil
	c.mu.Unlock()

	if d != nil {
		_ = d.Close()
	}
	c.Dispatcher.Close()
}

// Services are the outbound collaborators shared by every composer.
type Services struct {
	LLM     domain.LLMClient
	Search  domain.WebSearcher
	Weather domain.WeatherClient
	Images  domain.ImageGenerator
	Storage domain.ObjectStorage

	HistoryLimit  int
	InboxCapacity int
}

// Composers creates composers on first use and keeps them until the
// session is deleted or the process shuts down.
type Composers struct {
	sessions domain.SessionStore
	messages domain.MessageStore
	services Services

	mu        sync.Mutex
	composers map[domain.SessionID]*Composer
}

func NewComposers(sessions domain.SessionStore, messages domain.MessageStore, services Services) *Composers {
	return &Composers{
		sessions:  sessions,
		messages:  messages,
		services:  services,
		composers: make(map[domain.SessionID]*Composer),
	}
}

// Get returns the composer of a session, creating it if needed. It does not
// check that the session exists; Service.Composer does.
func (r *Composers) Get(id domain.SessionID) *Composer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.composers[id]; ok {
		return c
	}

	inbox := notify.NewInbox(r.services.InboxCapacity)
	c := &Composer{
		SessionID: id,
		Inbox:     inbox,
		Dispatcher: dispatch.New(dispatch.Deps{
			Log:          NewLog(id, r.sessions, r.messages),
			Notifier:     inbox,
			LLM:          r.services.LLM,
			Search:       r.services.Search,
			Weather:      r.services.Weather,
			Images:       r.services.Images,
			Storage:      r.services.Storage,
			HistoryLimit: r.services.HistoryLimit,
		}),
	}
	r.composers[id] = c
	return c
}

func (r *Composers) Lookup(id domain.SessionID) (*Composer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.composers[id]
	return c, ok
}

// Close tears down one session's composer, if it exists.
func (r *Composers) Close(id domain.SessionID) {
	r.mu.Lock()
	c, ok := r.composers[id]
	delete(r.composers, id)
	r.mu.Unlock()

	if ok {
		c.Close()
	}
}

func (r *Composers) CloseAll() {
	r.mu.Lock()
	all := r.composers
	r.composers = make(map[domain.SessionID]*Composer)
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}
