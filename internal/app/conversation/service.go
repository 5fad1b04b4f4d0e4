package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/chicha/internal/domain"
	"github.com/PabloGalante/chicha/internal/observability"
)

// WelcomeMessage opens every new chat.
const WelcomeMessage = "Hi! I'm CHICHA, your friendly AI assistant powered by Gemini. " +
	"I can search the web to help answer your questions. How can I help you today?"

type Service struct {
	sessionStore domain.SessionStore
	messageStore domain.MessageStore
	composers    *Composers
	now          func() time.Time
	newID        func() string
}

func NewService(
	sessionStore domain.SessionStore,
	messageStore domain.MessageStore,
	composers *Composers,
) *Service {
	return &Service{
		sessionStore: sessionStore,
		messageStore: messageStore,
		composers:    composers,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

type StartSessionInput struct {
	UserID domain.UserID
	Title  string
}

type StartSessionOutput struct {
	Session *domain.Session
	Welcome *domain.Message
}

func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (*StartSessionOutput, error) {
	now := s.now()

	log := observability.LoggerFromContext(ctx).With("user_id", in.UserID)
	log.Info("starting new session")

	session := &domain.Session{
		ID:        domain.SessionID(s.newID()),
		UserID:    in.UserID,
		CreatedAt: now,
		UpdatedAt: now,
		Title:     in.Title,
	}

	if err := s.sessionStore.CreateSession(session); err != nil {
		log.Error("failed to create session", "error", err)
		return nil, fmt.Errorf("create session: %w", err)
	}

	welcome := &domain.Message{
		ID:        domain.MessageID(s.newID()),
		SessionID: session.ID,
		Author:    domain.RoleBot,
		Text:      WelcomeMessage,
		CreatedAt: now,
	}

	if err := s.messageStore.AppendMessage(welcome); err != nil {
		log.Error("failed to append welcome message", "error", err)
		return nil, fmt.Errorf("append welcome message: %w", err)
	}

	log.Info("session started", "session_id", session.ID)

	return &StartSessionOutput{
		Session: session,
		Welcome: welcome,
	}, nil
}

// ListSessions returns a user's chats, most recently updated first.
func (s *Service) ListSessions(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	sessions, err := s.sessionStore.ListSessionsByUser(userID, limit)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to list sessions",
			"user_id", userID,
			"error", err,
		)
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (s *Service) GetSessionTimeline(
	ctx context.Context,
	sessionID domain.SessionID,
	limit int,
) (*domain.Session, []*domain.Message, error) {

	log := observability.LoggerFromContext(ctx).With(
		"session_id", sessionID,
		"limit", limit,
	)

	session, err := s.sessionStore.GetSession(sessionID)
	if err != nil {
		log.Error("failed to get session", "error", err)
		return nil, nil, err
	}

	msgs, err := s.messageStore.GetMessagesBySession(sessionID, limit)
	if err != nil {
		log.Error("failed to get messages", "error", err)
		return nil, nil, err
	}

	log.Info("fetched session timeline", "message_count", len(msgs))

	return session, msgs, nil
}

// GetMessages loads the given messages of a session in the order asked.
// Messages that no longer exist are skipped.
func (s *Service) GetMessages(ctx context.Context, sessionID domain.SessionID, ids []domain.MessageID) ([]*domain.Message, error) {
	out := make([]*domain.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.messageStore.GetMessage(sessionID, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			observability.LoggerFromContext(ctx).Error("failed to get message",
				"session_id", sessionID,
				"message_id", id,
				"error", err,
			)
			return nil, fmt.Errorf("get message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// DeleteSession closes the session's composer and removes the session with
// all its messages.
func (s *Service) DeleteSession(ctx context.Context, sessionID domain.SessionID) error {
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	if _, err := s.sessionStore.GetSession(sessionID); err != nil {
		return err
	}

	s.composers.Close(sessionID)

	if err := s.messageStore.DeleteMessagesBySession(sessionID); err != nil {
		log.Error("failed to delete messages", "error", err)
		return fmt.Errorf("delete messages: %w", err)
	}
	if err := s.sessionStore.DeleteSession(sessionID); err != nil {
		log.Error("failed to delete session", "error", err)
		return fmt.Errorf("delete session: %w", err)
	}

	log.Info("session deleted")
	return nil
}

// Composer returns the live composer of an existing session.
func (s *Service) Composer(ctx context.Context, sessionID domain.SessionID) (*Composer, error) {
	if _, err := s.sessionStore.GetSession(sessionID); err != nil {
		observability.LoggerFromContext(ctx).Warn("composer requested for unknown session",
			"session_id", sessionID,
			"error", err,
		)
		return nil, err
	}
	return s.composers.Get(sessionID), nil
}

// Shutdown closes every composer.
func (s *Service) Shutdown() {
	s.composers.CloseAll()
}
