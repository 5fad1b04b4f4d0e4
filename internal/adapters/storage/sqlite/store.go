// Package sqlite persists chat sessions and messages in a local SQLite file.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PabloGalante/chicha/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS chat_history (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS chat_history_user ON chat_history(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		author TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		processing INTEGER NOT NULL DEFAULT 0,
		sources TEXT,
		image_urls TEXT,
		lat REAL,
		lon REAL,
		original TEXT NOT NULL DEFAULT '',
		translated_to TEXT NOT NULL DEFAULT '',
		UNIQUE(session_id, id)
	);
`

// Store implements domain.SessionStore and domain.MessageStore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time keeps SQLite happy.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─────────────────────────────────────────
// SessionStore
// ─────────────────────────────────────────

func (s *Store) CreateSession(session *domain.Session) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_history (id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(session.ID), string(session.UserID), session.Title,
		session.CreatedAt.UnixNano(), session.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(session *domain.Session) error {
	res, err := s.db.Exec(`
		UPDATE chat_history SET title = ?, updated_at = ? WHERE id = ?
	`, session.Title, session.UpdatedAt.UnixNano(), string(session.ID))
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return expectOne(res, "session "+string(session.ID))
}

func (s *Store) GetSession(id domain.SessionID) (*domain.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_history
		WHERE id = ?
	`, string(id))

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return sess, err
}

func (s *Store) ListSessionsByUser(userID domain.UserID, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_history
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, string(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []*domain.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSession(id domain.SessionID) error {
	res, err := s.db.Exec(`DELETE FROM chat_history WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return expectOne(res, "session "+string(id))
}

// ─────────────────────────────────────────
// MessageStore
// ─────────────────────────────────────────

func (s *Store) AppendMessage(msg *domain.Message) error {
	cols, err := toColumns(msg)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO messages (id, session_id, author, content, created_at, processing,
			sources, image_urls, lat, lon, original, translated_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(msg.ID), string(msg.SessionID), string(msg.Author), msg.Text, msg.CreatedAt.UnixNano(),
		cols.processing, cols.sources, cols.imageURLs, cols.lat, cols.lon, msg.Original, msg.TranslatedTo)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) UpdateMessage(msg *domain.Message) error {
	cols, err := toColumns(msg)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE messages
		SET author = ?, content = ?, processing = ?, sources = ?, image_urls = ?,
			lat = ?, lon = ?, original = ?, translated_to = ?
		WHERE session_id = ? AND id = ?
	`, string(msg.Author), msg.Text, cols.processing, cols.sources, cols.imageURLs,
		cols.lat, cols.lon, msg.Original, msg.TranslatedTo, string(msg.SessionID), string(msg.ID))
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return expectOne(res, "message "+string(msg.ID))
}

func (s *Store) DeleteMessage(sessionID domain.SessionID, id domain.MessageID) error {
	res, err := s.db.Exec(`DELETE FROM messages WHERE session_id = ? AND id = ?`, string(sessionID), string(id))
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return expectOne(res, "message "+string(id))
}

const messageColumns = `id, session_id, author, content, created_at, processing,
	sources, image_urls, lat, lon, original, translated_to`

func (s *Store) GetMessage(sessionID domain.SessionID, id domain.MessageID) (*domain.Message, error) {
	row := s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE session_id = ? AND id = ?`,
		string(sessionID), string(id))

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	return msg, err
}

// GetMessagesBySession returns the last limit messages in append order.
func (s *Store) GetMessagesBySession(sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT `+messageColumns+` FROM (
			SELECT * FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, string(sessionID), limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []*domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *Store) DeleteMessagesBySession(sessionID domain.SessionID) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE session_id = ?`, string(sessionID)); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// Row mapping
// ─────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.Session, error) {
	var (
		sess               domain.Session
		id, userID         string
		createdAt, updated int64
	)
	if err := row.Scan(&id, &userID, &sess.Title, &createdAt, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.ID = domain.SessionID(id)
	sess.UserID = domain.UserID(userID)
	sess.CreatedAt = time.Unix(0, createdAt)
	sess.UpdatedAt = time.Unix(0, updated)
	return &sess, nil
}

func scanMessage(row scanner) (*domain.Message, error) {
	var (
		msg                   domain.Message
		id, sessionID, author string
		createdAt             int64
		processing            bool
		sources, imageURLs    sql.NullString
		lat, lon              sql.NullFloat64
	)
	if err := row.Scan(&id, &sessionID, &author, &msg.Text, &createdAt, &processing,
		&sources, &imageURLs, &lat, &lon, &msg.Original, &msg.TranslatedTo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}

	msg.ID = domain.MessageID(id)
	msg.SessionID = domain.SessionID(sessionID)
	msg.Author = domain.Role(author)
	msg.CreatedAt = time.Unix(0, createdAt)
	msg.Processing = processing

	if sources.Valid && sources.String != "" {
		if err := json.Unmarshal([]byte(sources.String), &msg.Sources); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
	}
	if imageURLs.Valid && imageURLs.String != "" {
		if err := json.Unmarshal([]byte(imageURLs.String), &msg.ImageURLs); err != nil {
			return nil, fmt.Errorf("decode image urls: %w", err)
		}
	}
	if lat.Valid && lon.Valid {
		msg.Location = &domain.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
	}
	return &msg, nil
}

type columns struct {
	processing bool
	sources    sql.NullString
	imageURLs  sql.NullString
	lat, lon   sql.NullFloat64
}

func toColumns(msg *domain.Message) (columns, error) {
	c := columns{processing: msg.Processing}
	if len(msg.Sources) > 0 {
		b, err := json.Marshal(msg.Sources)
		if err != nil {
			return c, fmt.Errorf("encode sources: %w", err)
		}
		c.sources = sql.NullString{String: string(b), Valid: true}
	}
	if len(msg.ImageURLs) > 0 {
		b, err := json.Marshal(msg.ImageURLs)
		if err != nil {
			return c, fmt.Errorf("encode image urls: %w", err)
		}
		c.imageURLs = sql.NullString{String: string(b), Valid: true}
	}
	if msg.Location != nil {
		c.lat = sql.NullFloat64{Float64: msg.Location.Lat, Valid: true}
		c.lon = sql.NullFloat64{Float64: msg.Location.Lon, Valid: true}
	}
	return c, nil
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
