package firestore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/chicha/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (CHICHA_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("chat_history")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

func (s *Store) messageDoc(sessionID domain.SessionID, msgID domain.MessageID) *firestore.DocumentRef {
	return s.messagesCol(sessionID).Doc(string(msgID))
}

func notFound(err error, what string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	UserID    string    `firestore:"user_id"`
	Title     string    `firestore:"title"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type sourceDoc struct {
	Title  string `firestore:"title"`
	URL    string `firestore:"url"`
	Domain string `firestore:"domain"`
	Icon   string `firestore:"icon"`
}

type messageDoc struct {
	SessionID    string      `firestore:"session_id"`
	Author       string      `firestore:"author"`
	Text         string      `firestore:"content"`
	CreatedAt    time.Time   `firestore:"created_at"`
	Processing   bool        `firestore:"processing"`
	Sources      []sourceDoc `firestore:"sources"`
	ImageURLs    []string    `firestore:"image_urls"`
	Lat          *float64    `firestore:"lat"`
	Lon          *float64    `firestore:"lon"`
	Original     string      `firestore:"original"`
	TranslatedTo string      `firestore:"translated_to"`
}

func toSessionDoc(session *domain.Session) sessionDoc {
	return sessionDoc{
		UserID:    string(session.UserID),
		Title:     session.Title,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
}

func (d sessionDoc) toDomain(id domain.SessionID) *domain.Session {
	return &domain.Session{
		ID:        id,
		UserID:    domain.UserID(d.UserID),
		Title:     d.Title,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func toMessageDoc(msg *domain.Message) messageDoc {
	doc := messageDoc{
		SessionID:    string(msg.SessionID),
		Author:       string(msg.Author),
		Text:         msg.Text,
		CreatedAt:    msg.CreatedAt,
		Processing:   msg.Processing,
		ImageURLs:    msg.ImageURLs,
		Original:     msg.Original,
		TranslatedTo: msg.TranslatedTo,
	}
	for _, src := range msg.Sources {
		doc.Sources = append(doc.Sources, sourceDoc(src))
	}
	if msg.Location != nil {
		lat, lon := msg.Location.Lat, msg.Location.Lon
		doc.Lat, doc.Lon = &lat, &lon
	}
	return doc
}

func (d messageDoc) toDomain(id domain.MessageID) *domain.Message {
	msg := &domain.Message{
		ID:           id,
		SessionID:    domain.SessionID(d.SessionID),
		Author:       domain.Role(d.Author),
		Text:         d.Text,
		CreatedAt:    d.CreatedAt,
		Processing:   d.Processing,
		ImageURLs:    d.ImageURLs,
		Original:     d.Original,
		TranslatedTo: d.TranslatedTo,
	}
	for _, src := range d.Sources {
		msg.Sources = append(msg.Sources, domain.Source(src))
	}
	if d.Lat != nil && d.Lon != nil {
		msg.Location = &domain.Coordinates{Lat: *d.Lat, Lon: *d.Lon}
	}
	return msg
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(session *domain.Session) error {
	ctx := context.Background()

	_, err := s.sessionDoc(session.ID).Create(ctx, toSessionDoc(session))
	if err != nil {
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(session *domain.Session) error {
	ctx := context.Background()

	_, err := s.sessionDoc(session.ID).Update(ctx, []firestore.Update{
		{Path: "title", Value: session.Title},
		{Path: "updated_at", Value: session.UpdatedAt},
	})
	if err != nil {
		if nf := notFound(err, "session "+string(session.ID)); nf != nil {
			return nf
		}
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(id domain.SessionID) (*domain.Session, error) {
	ctx := context.Background()

	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if nf := notFound(err, "session "+string(id)); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}

	return doc.toDomain(id), nil
}

func (s *Store) ListSessionsByUser(userID domain.UserID, limit int) ([]*domain.Session, error) {
	ctx := context.Background()

	q := s.sessionsCol().Where("user_id", "==", string(userID)).OrderBy("updated_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	out := []*domain.Session{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListSessionsByUser: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}

		out = append(out, doc.toDomain(domain.SessionID(snap.Ref.ID)))
	}
	return out, nil
}

func (s *Store) DeleteSession(id domain.SessionID) error {
	ctx := context.Background()

	_, err := s.sessionDoc(id).Delete(ctx, firestore.Exists)
	if err != nil {
		if nf := notFound(err, "session "+string(id)); nf != nil {
			return nf
		}
		return fmt.Errorf("firestore DeleteSession: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(msg *domain.Message) error {
	ctx := context.Background()

	_, err := s.messageDoc(msg.SessionID, msg.ID).Create(ctx, toMessageDoc(msg))
	if err != nil {
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	return nil
}

func (s *Store) UpdateMessage(msg *domain.Message) error {
	ctx := context.Background()

	// Set has no Exists precondition; read inside a transaction so a
	// missing message is reported instead of recreated.
	ref := s.messageDoc(msg.SessionID, msg.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, toMessageDoc(msg))
	})
	if err != nil {
		if nf := notFound(err, "message "+string(msg.ID)); nf != nil {
			return nf
		}
		return fmt.Errorf("firestore UpdateMessage: %w", err)
	}
	return nil
}

func (s *Store) DeleteMessage(sessionID domain.SessionID, id domain.MessageID) error {
	ctx := context.Background()

	_, err := s.messageDoc(sessionID, id).Delete(ctx, firestore.Exists)
	if err != nil {
		if nf := notFound(err, "message "+string(id)); nf != nil {
			return nf
		}
		return fmt.Errorf("firestore DeleteMessage: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(sessionID domain.SessionID, id domain.MessageID) (*domain.Message, error) {
	ctx := context.Background()

	snap, err := s.messageDoc(sessionID, id).Get(ctx)
	if err != nil {
		if nf := notFound(err, "message "+string(id)); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("firestore GetMessage: %w", err)
	}

	var doc messageDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode messageDoc: %w", err)
	}
	return doc.toDomain(id), nil
}

// GetMessagesBySession returns the last limit messages, oldest first.
func (s *Store) GetMessagesBySession(sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	ctx := context.Background()

	q := s.messagesCol(sessionID).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	out := []*domain.Message{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore GetMessagesBySession: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}

		out = append(out, doc.toDomain(domain.MessageID(snap.Ref.ID)))
	}

	slices.Reverse(out)
	return out, nil
}

func (s *Store) DeleteMessagesBySession(sessionID domain.SessionID) error {
	ctx := context.Background()

	iter := s.messagesCol(sessionID).Documents(ctx)
	defer iter.Stop()

	bw := s.client.BulkWriter(ctx)
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			bw.End()
			return fmt.Errorf("firestore DeleteMessagesBySession: %w", err)
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			bw.End()
			return fmt.Errorf("firestore DeleteMessagesBySession: %w", err)
		}
	}
	bw.End()
	return nil
}
