package storage

import (
	"context"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestCreateUser(t *testing.T) {
	s := bootstrap(t)

	u, err := s.CreateUser(context.Background(), "bob", "bob-session", t0)
	require.NoError(t, err)
	require.NotZero(t, u.ID)
	require.True(t, u.IsOnline)
	require.Equal(t, t0, u.LastSeen)

	got, err := s.UserBySession(context.Background(), "bob-session")
	require.NoError(t, err)
	require.Equal(t, u, got)
}

func TestCreateUserSessionExists(t *testing.T) {
	s := bootstrap(t)

	_, err := s.CreateUser(context.Background(), "bob", "same-session", t0)
	require.NoError(t, err)
	_, err = s.CreateUser(context.Background(), "carol", "same-session", t0)
	require.ErrorIs(t, err, ErrSessionExists)
}

func TestUserByIDNotExist(t *testing.T) {
	s := bootstrap(t)

	_, err := s.UserByID(context.Background(), 4242)
	require.ErrorIs(t, err, ErrUserNotExist)
}

func TestUsernameHeld(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "dave", "dave-1", t0)
	require.NoError(t, err)

	held, err := s.UsernameHeld(ctx, "dave", "dave-2", t0.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, held)

	// the owner itself never blocks its own name
	held, err = s.UsernameHeld(ctx, "dave", "dave-1", t0.Add(-time.Minute))
	require.NoError(t, err)
	require.False(t, held)

	// stale presence frees the name
	held, err = s.UsernameHeld(ctx, "dave", "dave-2", t0)
	require.NoError(t, err)
	require.False(t, held)
}

func TestSetPresence(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()
	u := createUser(t, s, t0)

	require.NoError(t, s.SetPresence(ctx, u.ID, false, t0.Add(time.Second)))

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.IsOnline)
	require.Equal(t, t0.Add(time.Second), got.LastSeen)

	require.ErrorIs(t, s.SetPresence(ctx, 999, true, t0), ErrUserNotExist)
}

func TestRefreshUser(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()
	u := createUser(t, s, t0)
	require.NoError(t, s.SetPresence(ctx, u.ID, false, t0))

	require.NoError(t, s.RefreshUser(ctx, u.ID, "renamed", t0.Add(time.Minute)))

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Username)
	require.True(t, got.IsOnline)

	require.ErrorIs(t, s.RefreshUser(ctx, 999, "x", t0), ErrUserNotExist)
}

func TestOnlineUsers(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	fresh := createUser(t, s, t0)
	stale := createUser(t, s, t0.Add(-2*time.Minute))
	offline := createUser(t, s, t0)
	require.NoError(t, s.SetPresence(ctx, offline.ID, false, t0))

	users, err := s.OnlineUsers(ctx, t0.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, fresh.ID, users[0].ID)

	stales, err := s.StaleUserIDs(ctx, t0.Add(-time.Minute))
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{stale.ID, offline.ID}, stales)
}
