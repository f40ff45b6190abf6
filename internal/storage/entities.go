package storage

import "time"

// Status is the delivery state of a message. Values are ordered: sent < delivered < seen.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// Rank returns position of s in the delivery order, 0 for unknown values
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusSeen:
		return 3
	default:
		return 0
	}
}

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	SessionID string    `json:"-"`
	IsOnline  bool      `json:"is_online"`
	LastSeen  time.Time `json:"last_seen"`
}

type Group struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	IsPrivate    bool      `json:"is_private"`
	PasswordHash string    `json:"-"`
	CreatedBy    int64     `json:"created_by"`
	MemberCount  int64     `json:"member_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is either private (RecipientID set) or a group message (GroupID set), never both
type Message struct {
	ID          int64     `json:"id"`
	ChatKey     string    `json:"chat"`
	Content     string    `json:"text"`
	SenderID    int64     `json:"sender_id"`
	RecipientID int64     `json:"recipient_id,omitempty"`
	GroupID     int64     `json:"group_id,omitempty"`
	SentAt      time.Time `json:"sent_at"`
	Status      Status    `json:"status"`
}

func (m Message) IsPrivate() bool { return m.RecipientID != 0 }

// MessageWithSender is a message joined with its author at read time.
// Sender is nil when the author has been purged (group messages outlive their senders).
type MessageWithSender struct {
	Message
	Sender *User `json:"sender"`
}

// ActiveChat is a row of a user's chat directory enriched with live data
type ActiveChat struct {
	UserID        int64     `json:"user_id"`
	ChatKey       string    `json:"chat"`
	ChatType      string    `json:"chat_type"`
	LastMessageAt time.Time `json:"last_message_at"`
	PeerUserID    int64     `json:"peer_user_id,omitempty"`
	GroupID       int64     `json:"group_id,omitempty"`
	Peer          *User     `json:"peer,omitempty"`
	Group         *Group    `json:"group,omitempty"`
	UnreadCount   int64     `json:"unread_count"`
}

type TypingIndicator struct {
	UserID     int64     `json:"user_id"`
	ChatKey    string    `json:"chat"`
	IsTyping   bool      `json:"is_typing"`
	LastUpdate time.Time `json:"last_update"`
	User       *User     `json:"user,omitempty"`
}

// Task is a deferred one-shot operation persisted until it has been executed
type Task struct {
	ID        int64
	Kind      string
	Payload   []byte
	RunAt     time.Time
	Attempts  int
	CreatedAt time.Time
}

// PurgeReport counts rows removed while purging a user
type PurgeReport struct {
	ActiveChats int64
	Typing      int64
	Messages    int64
	Memberships int64
}

// ReconcileReport counts derived rows fixed by Reconcile
type ReconcileReport struct {
	Memberships  int64
	MemberCounts int64
	ActiveChats  int64
	Typing       int64
	Messages     int64
}

// Total returns number of rows touched
func (r ReconcileReport) Total() int64 {
	return r.Memberships + r.MemberCounts + r.ActiveChats + r.Typing + r.Messages
}
