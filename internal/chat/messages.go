package chat

import (
	"context"
	"sessionchat/internal/chatkey"
	"sessionchat/internal/storage"
	"strings"
)

// NewMessage holds sendMessage input. Exactly one of RecipientID and GroupID must be set.
type NewMessage struct {
	SenderID    int64  `json:"sender" validate:"gt=0"`
	RecipientID int64  `json:"recipient" validate:"gte=0"`
	GroupID     int64  `json:"group" validate:"gte=0"`
	Content     string `json:"text" validate:"required,max=4000"`
}

// SendMessage stores message in "sent" state and touches the active chat directory in the same transaction:
// the sender's row always, the recipient's row for private chats. Private messages also get a deferred
// transition to "delivered".
func (s *Service) SendMessage(ctx context.Context, in NewMessage) (storage.Message, error) {
	if strings.TrimSpace(in.Content) == "" {
		in.Content = ""
	}
	if err := s.check(in); err != nil {
		return storage.Message{}, err
	}
	if (in.RecipientID == 0) == (in.GroupID == 0) {
		return storage.Message{}, invalid("recipient", "exactly one of recipient and group must be set")
	}
	if in.RecipientID == in.SenderID {
		return storage.Message{}, invalid("recipient", "must differ from sender")
	}

	var ref chatkey.Ref
	if in.RecipientID != 0 {
		ref = chatkey.PrivateRef(in.SenderID, in.RecipientID)
	} else {
		ref = chatkey.GroupRef(in.GroupID)
	}

	now := s.now()

	var m storage.Message
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		if err := s.participant(ctx, tx.Queries, in.SenderID, ref, true); err != nil {
			return err
		}
		if ref.IsPrivate() {
			if _, err := tx.UserByID(ctx, in.RecipientID); err != nil {
				return err
			}
		}

		var err error
		m, err = tx.InsertMessage(ctx, storage.Message{
			ChatKey:     ref.Key(),
			Content:     in.Content,
			SenderID:    in.SenderID,
			RecipientID: in.RecipientID,
			GroupID:     in.GroupID,
			SentAt:      now,
		})
		if err != nil {
			return err
		}

		entry := storage.ActiveChat{
			UserID:        in.SenderID,
			ChatKey:       ref.Key(),
			ChatType:      ref.Type(),
			LastMessageAt: now,
			PeerUserID:    ref.Peer(in.SenderID),
			GroupID:       in.GroupID,
		}
		if err := tx.UpsertActiveChat(ctx, entry); err != nil {
			return err
		}

		if !ref.IsPrivate() {
			return nil
		}

		entry.UserID, entry.PeerUserID = in.RecipientID, ref.Peer(in.RecipientID)
		if err := tx.UpsertActiveChat(ctx, entry); err != nil {
			return err
		}

		_, err = tx.EnqueueTask(ctx, storage.Task{
			Kind:      TaskAdvanceDeliveryStatus,
			Payload:   deliveryPayload(m.ID),
			RunAt:     now.Add(s.cfg.DeliveryDelay),
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return storage.Message{}, notFound(err)
	}

	return m, nil
}

// MarkChatSeen moves every message of the chat authored by someone other than userID to "seen"
// and returns how many messages changed
func (s *Service) MarkChatSeen(ctx context.Context, userID int64, chatKey string) (int64, error) {
	ref, err := parseKey(chatKey)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.store.InTx(ctx, func(tx *storage.Tx) error {
		if err := s.participant(ctx, tx.Queries, userID, ref, true); err != nil {
			return err
		}
		n, err = tx.MarkSeen(ctx, ref.Key(), userID)
		return err
	})
	if err != nil {
		return 0, notFound(err)
	}

	return n, nil
}

// ChatHistory returns messages of the chat from earliest to latest with current sender data
func (s *Service) ChatHistory(ctx context.Context, userID int64, chatKey string) ([]storage.MessageWithSender, error) {
	ref, err := parseKey(chatKey)
	if err != nil {
		return nil, err
	}
	if err := s.participant(ctx, s.store.Queries, userID, ref, false); err != nil {
		return nil, notFound(err)
	}

	messages, err := s.store.ChatMessages(ctx, ref.Key())
	if err != nil {
		return nil, err
	}
	for i := range messages {
		s.withPresence(messages[i].Sender)
	}

	return messages, nil
}

// UnreadCount counts messages of the chat authored by someone other than userID and not seen yet.
// ActiveChats reports the same number per directory row.
func (s *Service) UnreadCount(ctx context.Context, userID int64, chatKey string) (int64, error) {
	ref, err := parseKey(chatKey)
	if err != nil {
		return 0, err
	}
	if err := s.participant(ctx, s.store.Queries, userID, ref, false); err != nil {
		return 0, notFound(err)
	}

	return s.store.UnreadCount(ctx, ref.Key(), userID)
}

// ActiveChats returns the user's chat directory from the most recent conversation to the oldest
func (s *Service) ActiveChats(ctx context.Context, userID int64) ([]storage.ActiveChat, error) {
	if _, err := s.store.UserByID(ctx, userID); err != nil {
		return nil, notFound(err)
	}

	chats, err := s.store.ActiveChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		s.withPresence(chats[i].Peer)
	}

	return chats, nil
}

// participant checks that userID may act in the chat. Private chats admit the pair only.
// Group chats admit members; when strict is false public groups admit any existing user.
func (s *Service) participant(ctx context.Context, q *storage.Queries, userID int64, ref chatkey.Ref, strict bool) error {
	if _, err := q.UserByID(ctx, userID); err != nil {
		return err
	}

	if ref.IsPrivate() {
		if !ref.Includes(userID) {
			return ErrNotParticipant
		}
		return nil
	}

	g, err := q.GroupByID(ctx, ref.GroupID)
	if err != nil {
		return err
	}
	if !strict && !g.IsPrivate {
		return nil
	}

	member, err := q.IsMember(ctx, ref.GroupID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotParticipant
	}

	return nil
}

func parseKey(chatKey string) (chatkey.Ref, error) {
	ref, err := chatkey.Parse(chatKey)
	if err != nil {
		return chatkey.Ref{}, invalid("chat", "must be a valid chat key")
	}
	return ref, nil
}
