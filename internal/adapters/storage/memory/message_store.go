package memory

import (
	"fmt"
	"slices"
	"sync"

	"github.com/PabloGalante/chicha/internal/domain"
)

// MessageStore keeps each session's messages in append order.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[domain.SessionID][]domain.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[domain.SessionID][]domain.Message),
	}
}

func (s *MessageStore) AppendMessage(msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], clone(msg))
	return nil
}

func (s *MessageStore) UpdateMessage(msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[msg.SessionID]
	i := s.index(msgs, msg.ID)
	if i < 0 {
		return fmt.Errorf("message %s: %w", msg.ID, domain.ErrNotFound)
	}
	msgs[i] = clone(msg)
	return nil
}

func (s *MessageStore) DeleteMessage(sessionID domain.SessionID, id domain.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[sessionID]
	i := s.index(msgs, id)
	if i < 0 {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	s.messages[sessionID] = slices.Delete(msgs, i, i+1)
	return nil
}

func (s *MessageStore) GetMessage(sessionID domain.SessionID, id domain.MessageID) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	i := s.index(msgs, id)
	if i < 0 {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	m := clone(&msgs[i])
	return &m, nil
}

// GetMessagesBySession returns the last limit messages, oldest first. A
// non-positive limit returns all of them.
func (s *MessageStore) GetMessagesBySession(sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]*domain.Message, 0, len(msgs))
	for i := range msgs {
		m := clone(&msgs[i])
		out = append(out, &m)
	}
	return out, nil
}

func (s *MessageStore) DeleteMessagesBySession(sessionID domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, sessionID)
	return nil
}

func (s *MessageStore) index(msgs []domain.Message, id domain.MessageID) int {
	return slices.IndexFunc(msgs, func(m domain.Message) bool { return m.ID == id })
}

func clone(m *domain.Message) domain.Message {
	c := *m
	c.Sources = slices.Clone(m.Sources)
	c.ImageURLs = slices.Clone(m.ImageURLs)
	if m.Location != nil {
		loc := *m.Location
		c.Location = &loc
	}
	return c
}
