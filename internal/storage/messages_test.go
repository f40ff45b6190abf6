package storage

import (
	"context"
	"github.com/stretchr/testify/require"
	"sessionchat/internal/chatkey"
	"testing"
	"time"
)

func insertPrivate(t *testing.T, s *Store, from, to User, at time.Time) Message {
	m, err := s.InsertMessage(context.Background(), Message{
		ChatKey:     chatkey.PrivateRef(from.ID, to.ID).Key(),
		Content:     "hi",
		SenderID:    from.ID,
		RecipientID: to.ID,
		SentAt:      at,
	})
	require.NoError(t, err)
	return m
}

func TestInsertMessage(t *testing.T) {
	s := bootstrap(t)
	a := createUser(t, s, t0)
	b := createUser(t, s, t0)

	m := insertPrivate(t, s, a, b, t0)
	require.NotZero(t, m.ID)
	require.Equal(t, StatusSent, m.Status)
	require.True(t, m.IsPrivate())

	got, err := s.MessageByID(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestInsertMessageNeedsExactlyOneTarget(t *testing.T) {
	s := bootstrap(t)
	a := createUser(t, s, t0)

	_, err := s.InsertMessage(context.Background(), Message{ChatKey: "x", Content: "hi", SenderID: a.ID, SentAt: t0})
	require.Error(t, err)

	_, err = s.InsertMessage(context.Background(), Message{ChatKey: "x", Content: "hi", SenderID: a.ID, RecipientID: 2, GroupID: 3, SentAt: t0})
	require.Error(t, err)
}

func TestAdvanceStatusForwardOnly(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()
	a := createUser(t, s, t0)
	b := createUser(t, s, t0)
	m := insertPrivate(t, s, a, b, t0)

	ok, err := s.AdvanceStatus(ctx, m.ID, StatusDelivered)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AdvanceStatus(ctx, m.ID, StatusDelivered)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.AdvanceStatus(ctx, m.ID, StatusSeen)
	require.NoError(t, err)
	require.True(t, ok)

	// seen never reverts
	ok, err = s.AdvanceStatus(ctx, m.ID, StatusDelivered)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = s.AdvanceStatus(ctx, m.ID, StatusSent)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.MessageByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSeen, got.Status)

	// missing message is a no-op
	ok, err = s.AdvanceStatus(ctx, 98765, StatusDelivered)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMarkSeenAndUnread(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()
	a := createUser(t, s, t0)
	b := createUser(t, s, t0)
	key := chatkey.PrivateRef(a.ID, b.ID).Key()

	insertPrivate(t, s, a, b, t0)
	insertPrivate(t, s, a, b, t0.Add(time.Second))
	insertPrivate(t, s, b, a, t0.Add(2*time.Second))

	n, err := s.UnreadCount(ctx, key, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = s.UnreadCount(ctx, key, a.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	marked, err := s.MarkSeen(ctx, key, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), marked)

	marked, err = s.MarkSeen(ctx, key, b.ID)
	require.NoError(t, err)
	require.Zero(t, marked)

	n, err = s.UnreadCount(ctx, key, b.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	// a's own unread message is untouched by b reading
	n, err = s.UnreadCount(ctx, key, a.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestChatMessagesOrderAndSender(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()
	a := createUser(t, s, t0)
	b := createUser(t, s, t0)

	second := insertPrivate(t, s, b, a, t0.Add(time.Second))
	first := insertPrivate(t, s, a, b, t0)
	third := insertPrivate(t, s, a, b, t0.Add(time.Second))

	messages, err := s.ChatMessages(ctx, chatkey.PrivateRef(a.ID, b.ID).Key())
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, []int64{first.ID, second.ID, third.ID}, []int64{messages[0].ID, messages[1].ID, messages[2].ID})
	require.Equal(t, a.Username, messages[0].Sender.Username)
	require.Equal(t, b.Username, messages[1].Sender.Username)

	// sender data is joined at read time
	require.NoError(t, s.RefreshUser(ctx, a.ID, "renamed", t0))
	messages, err = s.ChatMessages(ctx, chatkey.PrivateRef(a.ID, b.ID).Key())
	require.NoError(t, err)
	require.Equal(t, "renamed", messages[0].Sender.Username)
}

func TestDeletePrivateMessagesKeepsGroupMessages(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()
	a := createUser(t, s, t0)
	b := createUser(t, s, t0)
	g := createGroup(t, s, a, false)

	insertPrivate(t, s, a, b, t0)
	insertPrivate(t, s, b, a, t0)
	groupMsg, err := s.InsertMessage(ctx, Message{ChatKey: chatkey.GroupRef(g.ID).Key(), Content: "all", SenderID: a.ID, GroupID: g.ID, SentAt: t0})
	require.NoError(t, err)

	n, err := s.DeletePrivateMessagesOf(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	_, err = s.MessageByID(ctx, groupMsg.ID)
	require.NoError(t, err)
}
