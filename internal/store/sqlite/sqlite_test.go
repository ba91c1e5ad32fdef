package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plasmarift/lobby-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "lobby.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetUserByUsername(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)

	created, err := s.CreateUser(ctx, "alice", "hash123")
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, "alice", created.Username)
	require.False(t, created.CreatedAt.IsZero())

	fetched, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, created.ID, fetched.ID)
	require.Equal(t, "hash123", fetched.PasswordHash)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "alice", "h1")
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, "alice", "h2")
	require.Error(t, err)
}

func TestChatRoomRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetChatRoom(ctx, "lobby")
	require.ErrorIs(t, err, store.ErrNotFound)

	created, err := s.CreateChatRoom(ctx, "lobby", "")
	require.NoError(t, err)
	require.Equal(t, "lobby", created.RoomName)
	require.Empty(t, created.PasswordHash)

	passworded, err := s.CreateChatRoom(ctx, "vault", "roomhash")
	require.NoError(t, err)
	require.Equal(t, "roomhash", passworded.PasswordHash)

	fetched, err := s.GetChatRoom(ctx, "vault")
	require.NoError(t, err)
	require.Equal(t, passworded.ID, fetched.ID)
}

func TestSaveChatLine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateChatRoom(ctx, "lobby", "")
	require.NoError(t, err)

	line := &store.ChatLine{RoomName: "lobby", Author: "alice", Text: "hello"}
	require.NoError(t, s.SaveChatLine(ctx, line))
	require.NotZero(t, line.ID)

	second := &store.ChatLine{RoomName: "lobby", Author: "bob", Text: "hi"}
	require.NoError(t, s.SaveChatLine(ctx, second))
	require.Greater(t, second.ID, line.ID)
}

func TestSchemaIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lobby.db")

	s, err := New(path)
	require.NoError(t, err)

	_, err = s.CreateUser(context.Background(), "alice", "h")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening applies the schema again without clobbering data.
	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	u, err := s.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
}
