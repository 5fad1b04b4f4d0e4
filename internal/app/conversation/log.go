package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/PabloGalante/chicha/internal/app/dispatch"
	"github.com/PabloGalante/chicha/internal/domain"
	"github.com/PabloGalante/chicha/internal/observability"
)

const maxTitleRunes = 50

var imageRef = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)

// Log is the conversation log of one session, backed by the message store.
// It implements dispatch.ConversationLog.
type Log struct {
	sessionID domain.SessionID
	sessions  domain.SessionStore
	messages  domain.MessageStore
	now       func() time.Time
	newID     func() string

	// mu serializes the session read-modify-write in touch.
	mu sync.Mutex
}

func NewLog(sessionID domain.SessionID, sessions domain.SessionStore, messages domain.MessageStore) *Log {
	return &Log{
		sessionID: sessionID,
		sessions:  sessions,
		messages:  messages,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (l *Log) Append(ctx context.Context, out dispatch.OutboundMessage) (domain.MessageID, error) {
	msg := &domain.Message{
		ID:        domain.MessageID(l.newID()),
		SessionID: l.sessionID,
		CreatedAt: l.now(),
	}
	apply(msg, out)

	if err := l.messages.AppendMessage(msg); err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}

	l.touch(ctx, msg)
	return msg.ID, nil
}

// Replace swaps the content of an existing message, keeping its id and
// creation time.
func (l *Log) Replace(ctx context.Context, id domain.MessageID, out dispatch.OutboundMessage) error {
	msg, err := l.messages.GetMessage(l.sessionID, id)
	if err != nil {
		return fmt.Errorf("replace message: %w", err)
	}
	apply(msg, out)
	msg.Original = ""
	msg.TranslatedTo = ""

	if err := l.messages.UpdateMessage(msg); err != nil {
		return fmt.Errorf("replace message: %w", err)
	}

	l.touch(ctx, msg)
	return nil
}

func (l *Log) Remove(_ context.Context, id domain.MessageID) error {
	if err := l.messages.DeleteMessage(l.sessionID, id); err != nil {
		return fmt.Errorf("remove message: %w", err)
	}
	return nil
}

func (l *Log) History(_ context.Context, limit int) ([]*domain.Message, error) {
	return l.messages.GetMessagesBySession(l.sessionID, limit)
}

// touch bumps the session's UpdatedAt and names an untitled session after
// its first user message. Failures only get logged; the message is already
// stored.
func (l *Log) touch(ctx context.Context, msg *domain.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	log := observability.LoggerFromContext(ctx)

	session, err := l.sessions.GetSession(l.sessionID)
	if err != nil {
		log.Warn("failed to load session for update", "error", err)
		return
	}

	session.UpdatedAt = l.now()
	if session.Title == "" && !msg.IsFromBot() {
		session.Title = deriveTitle(msg.Text)
	}

	if err := l.sessions.UpdateSession(session); err != nil {
		log.Warn("failed to update session", "error", err)
	}
}

func apply(msg *domain.Message, out dispatch.OutboundMessage) {
	msg.Author = domain.RoleUser
	if out.FromBot {
		msg.Author = domain.RoleBot
	}
	msg.Text = out.Text
	msg.Processing = out.Processing
	msg.Sources = out.Sources
	msg.ImageURLs = out.ImageURLs
	msg.Location = out.Location
}

// deriveTitle uses the first line of text, minus image references,
// shortened to maxTitleRunes.
func deriveTitle(text string) string {
	text = strings.TrimSpace(imageRef.ReplaceAllString(text, ""))
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	if utf8.RuneCountInString(text) <= maxTitleRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxTitleRunes])) + "…"
}
