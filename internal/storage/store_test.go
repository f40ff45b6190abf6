package storage

import (
	"context"
	"errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	mytesting "sessionchat/internal/testing"
	"testing"
	"time"
)

var t0 = mytesting.Epoch

func bootstrap(t *testing.T) *Store {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	s, err := New(logger.Sugar(), TestConfig)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

func createUser(t *testing.T, s *Store, now time.Time) User {
	u, err := s.CreateUser(context.Background(), mytesting.RandUsername(), mytesting.RandSession(), now)
	require.NoError(t, err)
	return u
}

func TestNewUnsupportedDriver(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	_, err = New(logger.Sugar(), Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestMigrateIdempotent(t *testing.T) {
	s := bootstrap(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestRebind(t *testing.T) {
	require.Equal(t, "select 1 where a = $1 and b in ($2, $3)", postgres.rebind("select 1 where a = ? and b in (?, ?)"))
	require.Equal(t, "select 1 where a = ?", sqlite.rebind("select 1 where a = ?"))
	require.Equal(t, "select 1", postgres.rebind("select 1"))
}

func TestDDL(t *testing.T) {
	stmt := "create table x (id INTEGER PRIMARY KEY AUTOINCREMENT)"
	require.Equal(t, "create table x (id BIGSERIAL PRIMARY KEY)", postgres.ddl(stmt))
	require.Equal(t, stmt, sqlite.ddl(stmt))
}

func TestInTxRollback(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx *Tx) error {
		_, err := tx.CreateUser(ctx, "ghost", "ghost-session", t0)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.UserBySession(ctx, "ghost-session")
	require.ErrorIs(t, err, ErrUserNotExist)
}

func TestInTxCommit(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	var id int64
	err := s.InTx(ctx, func(tx *Tx) error {
		u, err := tx.CreateUser(ctx, "alice", "alice-session", t0)
		id = u.ID
		return err
	})
	require.NoError(t, err)

	u, err := s.UserByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
}

func TestStatusRank(t *testing.T) {
	require.Less(t, StatusSent.Rank(), StatusDelivered.Rank())
	require.Less(t, StatusDelivered.Rank(), StatusSeen.Rank())
	require.Equal(t, 0, Status("lost").Rank())
}
