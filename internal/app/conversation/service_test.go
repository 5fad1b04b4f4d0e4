package conversation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/chicha/internal/adapters/llm"
	"github.com/PabloGalante/chicha/internal/adapters/storage/memory"
	"github.com/PabloGalante/chicha/internal/app/conversation"
	"github.com/PabloGalante/chicha/internal/app/dictation"
	"github.com/PabloGalante/chicha/internal/domain"
)

func newService() (*conversation.Service, *memory.SessionStore, *memory.MessageStore) {
	sessionStore := memory.NewSessionStore()
	messageStore := memory.NewMessageStore()
	composers := conversation.NewComposers(sessionStore, messageStore, conversation.Services{
		LLM:          llm.NewMockLLM(),
		HistoryLimit: 20,
	})
	return conversation.NewService(sessionStore, messageStore, composers), sessionStore, messageStore
}

func TestStartSessionAndSendMessage(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := newService()

	out, err := svc.StartSession(ctx, conversation.StartSessionInput{UserID: "test-user"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Session.ID)
	require.Equal(t, conversation.WelcomeMessage, out.Welcome.Text)

	composer, err := svc.Composer(ctx, out.Session.ID)
	require.NoError(t, err)

	composer.Dispatcher.SetInput("Hola CHICHA")
	outcome, err := composer.Dispatcher.Send(ctx)
	require.NoError(t, err)
	require.False(t, outcome.Failed())

	_, msgs, err := svc.GetSessionTimeline(ctx, out.Session.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, domain.RoleBot, msgs[0].Author)
	require.Equal(t, domain.RoleUser, msgs[1].Author)
	require.Equal(t, "Hola CHICHA", msgs[1].Text)
	require.Equal(t, domain.RoleBot, msgs[2].Author)
	require.Equal(t, `You said "Hola CHICHA".`, msgs[2].Text)
	require.False(t, msgs[2].Processing)

	sess, err := sessions.GetSession(out.Session.ID)
	require.NoError(t, err)
	require.Equal(t, "Hola CHICHA", sess.Title)
	require.False(t, sess.UpdatedAt.Before(out.Session.UpdatedAt))
}

func TestSessionTitleIsShortened(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := newService()

	out, err := svc.StartSession(ctx, conversation.StartSessionInput{UserID: "u"})
	require.NoError(t, err)
	composer, err := svc.Composer(ctx, out.Session.ID)
	require.NoError(t, err)

	composer.Dispatcher.SetInput(strings.Repeat("word ", 30))
	_, err = composer.Dispatcher.Send(ctx)
	require.NoError(t, err)

	sess, err := sessions.GetSession(out.Session.ID)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(sess.Title, "…"))
	require.LessOrEqual(t, len([]rune(sess.Title)), 51)
}

func TestListAndDeleteSessions(t *testing.T) {
	ctx := context.Background()
	svc, _, messages := newService()

	first, err := svc.StartSession(ctx, conversation.StartSessionInput{UserID: "u", Title: "first"})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := svc.StartSession(ctx, conversation.StartSessionInput{UserID: "u", Title: "second"})
	require.NoError(t, err)

	list, err := svc.ListSessions(ctx, "u", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.Session.ID, list[0].ID)

	composer, err := svc.Composer(ctx, first.Session.ID)
	require.NoError(t, err)
	composer.Dispatcher.SetInput("pending text")

	require.NoError(t, svc.DeleteSession(ctx, first.Session.ID))

	_, _, err = svc.GetSessionTimeline(ctx, first.Session.ID, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
	msgs, err := messages.GetMessagesBySession(first.Session.ID, 0)
	require.NoError(t, err)
	require.Empty(t, msgs)

	// The old composer is closed and no longer accepts dispatches.
	_, err = composer.Dispatcher.Send(ctx)
	require.Error(t, err)

	_, err = svc.Composer(ctx, first.Session.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, svc.DeleteSession(ctx, first.Session.ID), domain.ErrNotFound)
}

type scriptedEngine struct {
	mu     sync.Mutex
	events chan dictation.Event
}

func (e *scriptedEngine) Available() bool { return true }

func (e *scriptedEngine) Open(context.Context, dictation.CaptureConfig) (dictation.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = make(chan dictation.Event, 8)
	return &scriptedHandle{events: e.events}, nil
}

func (e *scriptedEngine) push(ev dictation.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events <- ev
}

type scriptedHandle struct {
	once   sync.Once
	events chan dictation.Event
}

func (h *scriptedHandle) Events() <-chan dictation.Event { return h.events }

func (h *scriptedHandle) Stop() error {
	h.once.Do(func() { close(h.events) })
	return nil
}

func TestDictationFeedsComposerInput(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService()

	out, err := svc.StartSession(ctx, conversation.StartSessionInput{UserID: "u"})
	require.NoError(t, err)
	composer, err := svc.Composer(ctx, out.Session.ID)
	require.NoError(t, err)
	composer.Dispatcher.SetInput("please")

	engine := &scriptedEngine{}
	dict := composer.AttachDictation(engine)
	require.NoError(t, dict.Start(ctx))

	engine.push(dictation.Event{Type: dictation.EventResult, Text: "what is"})
	engine.push(dictation.Event{Type: dictation.EventResult, Text: "what is the time", Final: true})

	require.Eventually(t, func() bool {
		return composer.Dispatcher.Input() == "please what is the time"
	}, time.Second, 5*time.Millisecond)

	engine.push(dictation.Event{Type: dictation.EventError, Err: errors.New("no-speech")})

	require.Eventually(t, func() bool {
		return composer.Inbox.Len() == 1
	}, time.Second, 5*time.Millisecond)

	notes := composer.Inbox.Drain()
	require.Equal(t, "Speech Recognition Error", notes[0].Title)
	require.Equal(t, "no-speech", notes[0].Description)

	svc.Shutdown()
	require.Nil(t, composer.Dictation())
}
