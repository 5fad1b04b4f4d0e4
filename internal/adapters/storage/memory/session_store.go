package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/PabloGalante/chicha/internal/domain"
)

// SessionStore keeps chat sessions in a map. It is not persistent and only
// suits local mode and tests.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionID]domain.Session),
	}
}

func (s *SessionStore) CreateSession(session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}

	s.sessions[session.ID] = *session
	return nil
}

func (s *SessionStore) UpdateSession(session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; !exists {
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrNotFound)
	}

	s.sessions[session.ID] = *session
	return nil
}

func (s *SessionStore) GetSession(id domain.SessionID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}

	return &sess, nil
}

// ListSessionsByUser returns the user's sessions, most recently updated first.
func (s *SessionStore) ListSessionsByUser(userID domain.UserID, limit int) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.Session{}
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sess := sess
			result = append(result, &sess)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func (s *SessionStore) DeleteSession(id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	delete(s.sessions, id)
	return nil
}
