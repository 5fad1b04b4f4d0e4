// Package redis keeps chat sessions and messages in Redis with a sliding TTL.
//
// Layout per session:
//
//	chicha:session:<id>          JSON session record
//	chicha:user:<uid>:sessions   sorted set of session ids scored by updated_at
//	chicha:messages:<id>         hash of message id -> JSON message
//	chicha:order:<id>            list of message ids in append order
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PabloGalante/chicha/internal/domain"
)

const (
	DefaultTTL = 7 * 24 * time.Hour
	keyPrefix  = "chicha:"
)

type Store struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewStore connects to the Redis server at url (redis://host:port/db).
func NewStore(ctx context.Context, url string, ttl time.Duration) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewStoreWithClient(rdb, ttl), nil
}

// NewStoreWithClient wraps an existing client. A zero ttl uses DefaultTTL.
func NewStoreWithClient(rdb *goredis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func sessionKey(id domain.SessionID) string  { return keyPrefix + "session:" + string(id) }
func userKey(id domain.UserID) string        { return keyPrefix + "user:" + string(id) + ":sessions" }
func messagesKey(id domain.SessionID) string { return keyPrefix + "messages:" + string(id) }
func orderKey(id domain.SessionID) string    { return keyPrefix + "order:" + string(id) }

// ─────────────────────────────────────────
// SessionStore
// ─────────────────────────────────────────

func (s *Store) CreateSession(session *domain.Session) error {
	ctx := context.Background()

	data, err := json.Marshal(toRecord(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, sessionKey(session.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis CreateSession: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}

	return s.index(ctx, session)
}

func (s *Store) UpdateSession(session *domain.Session) error {
	ctx := context.Background()

	current, err := s.GetSession(session.ID)
	if err != nil {
		return err
	}
	current.Title = session.Title
	current.UpdatedAt = session.UpdatedAt

	data, err := json.Marshal(toRecord(current))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis UpdateSession: %w", err)
	}
	return s.index(ctx, current)
}

func (s *Store) index(ctx context.Context, session *domain.Session) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, userKey(session.UserID), goredis.Z{
			Score:  float64(session.UpdatedAt.UnixNano()),
			Member: string(session.ID),
		})
		pipe.Expire(ctx, userKey(session.UserID), s.ttl)
		pipe.Expire(ctx, messagesKey(session.ID), s.ttl)
		pipe.Expire(ctx, orderKey(session.ID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(id domain.SessionID) (*domain.Session, error) {
	ctx := context.Background()

	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == goredis.Nil {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis GetSession: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return rec.toDomain(), nil
}

func (s *Store) ListSessionsByUser(userID domain.UserID, limit int) ([]*domain.Session, error) {
	ctx := context.Background()

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.rdb.ZRevRange(ctx, userKey(userID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ListSessionsByUser: %w", err)
	}

	out := []*domain.Session{}
	for _, id := range ids {
		sess, err := s.GetSession(domain.SessionID(id))
		if err != nil {
			// Expired record still in the index.
			s.rdb.ZRem(ctx, userKey(userID), id)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Store) DeleteSession(id domain.SessionID) error {
	ctx := context.Background()

	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.ZRem(ctx, userKey(sess.UserID), string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis DeleteSession: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// MessageStore
// ─────────────────────────────────────────

func (s *Store) AppendMessage(msg *domain.Message) error {
	ctx := context.Background()

	data, err := json.Marshal(toMessageRecord(msg))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ok, err := s.rdb.HSetNX(ctx, messagesKey(msg.SessionID), string(msg.ID), data).Result()
	if err != nil {
		return fmt.Errorf("redis AppendMessage: %w", err)
	}
	if !ok {
		return fmt.Errorf("message %s already exists", msg.ID)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, orderKey(msg.SessionID), string(msg.ID))
		pipe.Expire(ctx, orderKey(msg.SessionID), s.ttl)
		pipe.Expire(ctx, messagesKey(msg.SessionID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis AppendMessage: %w", err)
	}
	return nil
}

func (s *Store) UpdateMessage(msg *domain.Message) error {
	ctx := context.Background()

	exists, err := s.rdb.HExists(ctx, messagesKey(msg.SessionID), string(msg.ID)).Result()
	if err != nil {
		return fmt.Errorf("redis UpdateMessage: %w", err)
	}
	if !exists {
		return fmt.Errorf("message %s: %w", msg.ID, domain.ErrNotFound)
	}

	data, err := json.Marshal(toMessageRecord(msg))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.rdb.HSet(ctx, messagesKey(msg.SessionID), string(msg.ID), data).Err(); err != nil {
		return fmt.Errorf("redis UpdateMessage: %w", err)
	}
	return nil
}

func (s *Store) DeleteMessage(sessionID domain.SessionID, id domain.MessageID) error {
	ctx := context.Background()

	n, err := s.rdb.HDel(ctx, messagesKey(sessionID), string(id)).Result()
	if err != nil {
		return fmt.Errorf("redis DeleteMessage: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if err := s.rdb.LRem(ctx, orderKey(sessionID), 0, string(id)).Err(); err != nil {
		return fmt.Errorf("redis DeleteMessage: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(sessionID domain.SessionID, id domain.MessageID) (*domain.Message, error) {
	ctx := context.Background()

	data, err := s.rdb.HGet(ctx, messagesKey(sessionID), string(id)).Bytes()
	if err == goredis.Nil {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis GetMessage: %w", err)
	}
	return decodeMessage(data)
}

// GetMessagesBySession returns the last limit messages, oldest first.
func (s *Store) GetMessagesBySession(sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	ctx := context.Background()

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	ids, err := s.rdb.LRange(ctx, orderKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis GetMessagesBySession: %w", err)
	}

	out := []*domain.Message{}
	if len(ids) == 0 {
		return out, nil
	}

	values, err := s.rdb.HMGet(ctx, messagesKey(sessionID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis GetMessagesBySession: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		msg, err := decodeMessage([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Store) DeleteMessagesBySession(sessionID domain.SessionID) error {
	ctx := context.Background()

	if err := s.rdb.Del(ctx, messagesKey(sessionID), orderKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis DeleteMessagesBySession: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// Records
// ─────────────────────────────────────────

type sessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRecord(s *domain.Session) sessionRecord {
	return sessionRecord{
		ID:        string(s.ID),
		UserID:    string(s.UserID),
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func (r sessionRecord) toDomain() *domain.Session {
	return &domain.Session{
		ID:        domain.SessionID(r.ID),
		UserID:    domain.UserID(r.UserID),
		Title:     r.Title,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type messageRecord struct {
	ID           string              `json:"id"`
	SessionID    string              `json:"session_id"`
	Author       string              `json:"author"`
	Text         string              `json:"content"`
	CreatedAt    time.Time           `json:"created_at"`
	Processing   bool                `json:"processing,omitempty"`
	Sources      []domain.Source     `json:"sources,omitempty"`
	ImageURLs    []string            `json:"image_urls,omitempty"`
	Location     *domain.Coordinates `json:"location,omitempty"`
	Original     string              `json:"original,omitempty"`
	TranslatedTo string              `json:"translated_to,omitempty"`
}

func toMessageRecord(m *domain.Message) messageRecord {
	return messageRecord{
		ID:           string(m.ID),
		SessionID:    string(m.SessionID),
		Author:       string(m.Author),
		Text:         m.Text,
		CreatedAt:    m.CreatedAt,
		Processing:   m.Processing,
		Sources:      m.Sources,
		ImageURLs:    m.ImageURLs,
		Location:     m.Location,
		Original:     m.Original,
		TranslatedTo: m.TranslatedTo,
	}
}

func decodeMessage(data []byte) (*domain.Message, error) {
	var r messageRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &domain.Message{
		ID:           domain.MessageID(r.ID),
		SessionID:    domain.SessionID(r.SessionID),
		Author:       domain.Role(r.Author),
		Text:         r.Text,
		CreatedAt:    r.CreatedAt,
		Processing:   r.Processing,
		Sources:      r.Sources,
		ImageURLs:    r.ImageURLs,
		Location:     r.Location,
		Original:     r.Original,
		TranslatedTo: r.TranslatedTo,
	}, nil
}
