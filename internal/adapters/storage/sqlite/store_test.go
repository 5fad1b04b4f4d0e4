package sqlite_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/chicha/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/chicha/internal/domain"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "chicha.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessions(t *testing.T) {
	store := openStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateSession(&domain.Session{ID: "s1", UserID: "u", CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, store.CreateSession(&domain.Session{ID: "s2", UserID: "u", CreatedAt: base, UpdatedAt: base.Add(time.Minute)}))
	require.Error(t, store.CreateSession(&domain.Session{ID: "s1", UserID: "u"}))

	require.NoError(t, store.UpdateSession(&domain.Session{ID: "s1", Title: "Trip to Pune", UpdatedAt: base.Add(time.Hour)}))

	list, err := store.ListSessionsByUser("u", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, domain.SessionID("s1"), list[0].ID)
	require.Equal(t, "Trip to Pune", list[0].Title)
	require.True(t, list[0].UpdatedAt.Equal(base.Add(time.Hour)))

	require.NoError(t, store.DeleteSession("s2"))
	_, err = store.GetSession("s2")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, store.UpdateSession(&domain.Session{ID: "s2"}), domain.ErrNotFound)
}

func TestMessagesKeepAppendOrderAndFields(t *testing.T) {
	store := openStore(t)
	now := time.Now()

	msgs := []*domain.Message{
		{ID: "a", SessionID: "s", Author: domain.RoleBot, Text: "welcome", CreatedAt: now},
		{ID: "b", SessionID: "s", Author: domain.RoleUser, Text: "look ![Image](https://cdn.test/x.png)",
			ImageURLs: []string{"https://cdn.test/x.png"}, CreatedAt: now},
		{ID: "c", SessionID: "s", Author: domain.RoleBot, Text: "Thinking...", Processing: true, CreatedAt: now},
	}
	for _, m := range msgs {
		require.NoError(t, store.AppendMessage(m))
	}

	require.NoError(t, store.UpdateMessage(&domain.Message{
		ID: "c", SessionID: "s", Author: domain.RoleBot, Text: "Weather in Pune",
		Sources:  []domain.Source{{Title: "go.dev", URL: "https://go.dev", Domain: "go.dev"}},
		Location: &domain.Coordinates{Lat: 18.52, Lon: 73.86},
	}))

	got, err := store.GetMessagesBySession("s", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, domain.MessageID("b"), got[0].ID)
	require.Equal(t, []string{"https://cdn.test/x.png"}, got[0].ImageURLs)
	require.Equal(t, domain.MessageID("c"), got[1].ID)
	require.False(t, got[1].Processing)
	require.Equal(t, &domain.Coordinates{Lat: 18.52, Lon: 73.86}, got[1].Location)
	require.Equal(t, "go.dev", got[1].Sources[0].Domain)
	require.True(t, got[1].CreatedAt.Equal(now))

	require.NoError(t, store.DeleteMessage("s", "b"))
	require.ErrorIs(t, store.DeleteMessage("s", "b"), domain.ErrNotFound)
	_, err = store.GetMessage("s", "b")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.DeleteMessagesBySession("s"))
	got, err = store.GetMessagesBySession("s", 0)
	require.NoError(t, err)
	require.Empty(t, got)
}
