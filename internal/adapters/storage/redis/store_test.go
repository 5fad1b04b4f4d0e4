package redis

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/chicha/internal/domain"
)

func TestKeys(t *testing.T) {
	require.Equal(t, "chicha:session:s1", sessionKey("s1"))
	require.Equal(t, "chicha:user:u1:sessions", userKey("u1"))
	require.Equal(t, "chicha:messages:s1", messagesKey("s1"))
	require.Equal(t, "chicha:order:s1", orderKey("s1"))
}

func TestMessageRecordKeepsEveryField(t *testing.T) {
	msg := &domain.Message{
		ID:           "m1",
		SessionID:    "s1",
		Author:       domain.RoleBot,
		Text:         "नमस्ते",
		CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Sources:      []domain.Source{{Title: "go.dev", URL: "https://go.dev", Domain: "go.dev"}},
		ImageURLs:    []string{"https://cdn.test/a.png"},
		Location:     &domain.Coordinates{Lat: 1.5, Lon: -2.25},
		Original:     "Hello",
		TranslatedTo: "hi",
	}

	raw, err := json.Marshal(toMessageRecord(msg))
	require.NoError(t, err)

	got, err := decodeMessage(raw)
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

// TestStoreAgainstServer runs only when CHICHA_TEST_REDIS_URL points at a
// disposable Redis.
func TestStoreAgainstServer(t *testing.T) {
	url := os.Getenv("CHICHA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CHICHA_TEST_REDIS_URL not set")
	}

	store, err := NewStore(context.Background(), url, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	user := domain.UserID(uuid.NewString())
	sid := domain.SessionID(uuid.NewString())
	now := time.Now().UTC()

	require.NoError(t, store.CreateSession(&domain.Session{ID: sid, UserID: user, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, store.UpdateSession(&domain.Session{ID: sid, Title: "Trip", UpdatedAt: now.Add(time.Second)}))

	list, err := store.ListSessionsByUser(user, 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Trip", list[0].Title)

	for _, id := range []domain.MessageID{"a", "b", "c"} {
		require.NoError(t, store.AppendMessage(&domain.Message{ID: id, SessionID: sid, Author: domain.RoleUser, Text: string(id)}))
	}
	require.NoError(t, store.DeleteMessage(sid, "b"))

	msgs, err := store.GetMessagesBySession(sid, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, domain.MessageID("a"), msgs[0].ID)
	require.Equal(t, domain.MessageID("c"), msgs[1].ID)

	require.NoError(t, store.DeleteMessagesBySession(sid))
	require.NoError(t, store.DeleteSession(sid))
	_, err = store.GetSession(sid)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
