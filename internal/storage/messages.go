package storage

import (
	"context"
	"database/sql"
	"errors"
	"sessionchat/internal/clock"
	"strings"
)

const messageColumns = "m.id, m.chat_key, m.content, m.sender_id, m.recipient_id, m.group_id, m.sent_at, m.status"

func scanMessage(row scanner, extra ...interface{}) (Message, error) {
	var (
		m         Message
		recipient sql.NullInt64
		group     sql.NullInt64
		sentAt    int64
		status    string
	)
	dest := append([]interface{}{&m.ID, &m.ChatKey, &m.Content, &m.SenderID, &recipient, &group, &sentAt, &status}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Message{}, err
	}
	m.RecipientID = recipient.Int64
	m.GroupID = group.Int64
	m.SentAt = clock.FromMillis(sentAt)
	m.Status = Status(status)
	return m, nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// InsertMessage creates message in "sent" state and returns it with id assigned
func (q *Queries) InsertMessage(ctx context.Context, m Message) (Message, error) {
	q.logger.Debugf("Creating message from user (id: %d) in chat (%s)", m.SenderID, m.ChatKey)

	stmt := `insert into messages (chat_key, content, sender_id, recipient_id, group_id, sent_at, status)
			 values (?, ?, ?, ?, ?, ?, ?)
			 returning id`
	err := q.queryRow(ctx, stmt, m.ChatKey, m.Content, m.SenderID, nullID(m.RecipientID), nullID(m.GroupID),
		clock.Millis(m.SentAt), string(StatusSent)).Scan(&m.ID)
	if err != nil {
		return Message{}, err
	}
	m.Status = StatusSent
	m.SentAt = clock.FromMillis(clock.Millis(m.SentAt))

	q.logger.Debugf("Created message with id %d", m.ID)

	return m, nil
}

// MessageByID returns message or ErrMessageNotExist
func (q *Queries) MessageByID(ctx context.Context, id int64) (Message, error) {
	m, err := scanMessage(q.queryRow(ctx, "select "+messageColumns+" from messages m where m.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrMessageNotExist
	}
	return m, err
}

// AdvanceStatus moves message to status if that is a step forward.
// It returns false when the message is gone or already at or past status.
func (q *Queries) AdvanceStatus(ctx context.Context, id int64, status Status) (bool, error) {
	var lower []interface{}
	for _, s := range []Status{StatusSent, StatusDelivered, StatusSeen} {
		if s.Rank() < status.Rank() {
			lower = append(lower, string(s))
		}
	}
	if len(lower) == 0 {
		return false, nil
	}

	stmt := "update messages set status = ? where id = ? and status in (?" + strings.Repeat(", ?", len(lower)-1) + ")"
	args := append([]interface{}{string(status), id}, lower...)
	n, err := q.execCount(ctx, stmt, args...)
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// MarkSeen moves every message of chat not authored by viewer to "seen" and returns how many changed
func (q *Queries) MarkSeen(ctx context.Context, chatKey string, viewerID int64) (int64, error) {
	q.logger.Debugf("Marking chat (%s) seen by user (id: %d)", chatKey, viewerID)

	stmt := "update messages set status = ? where chat_key = ? and sender_id <> ? and status <> ?"
	return q.execCount(ctx, stmt, string(StatusSeen), chatKey, viewerID, string(StatusSeen))
}

// UnreadCount counts messages of chat authored by someone other than userID and not yet seen
func (q *Queries) UnreadCount(ctx context.Context, chatKey string, userID int64) (int64, error) {
	var n int64
	stmt := "select count(*) from messages where chat_key = ? and sender_id <> ? and status <> ?"
	err := q.queryRow(ctx, stmt, chatKey, userID, string(StatusSeen)).Scan(&n)
	return n, err
}

// ChatMessages returns chat history from earliest to latest with authors joined at read time
func (q *Queries) ChatMessages(ctx context.Context, chatKey string) ([]MessageWithSender, error) {
	q.logger.Debugf("Retrieving messages for chat (%s)", chatKey)

	stmt := `select ` + messageColumns + `,
				  u.id, u.username, u.is_online, u.last_seen
			 from messages m
			 left join users u
			   on u.id = m.sender_id
			where m.chat_key = ?
			order by m.sent_at asc, m.id asc`

	rows, err := q.query(ctx, stmt, chatKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []MessageWithSender
	for rows.Next() {
		var sender nullableUser
		m, err := scanMessage(rows, sender.dest()...)
		if err != nil {
			return nil, err
		}
		messages = append(messages, MessageWithSender{Message: m, Sender: sender.user()})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	q.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// DeletePrivateMessagesOf removes private messages the user sent or received. Group messages stay.
func (q *Queries) DeletePrivateMessagesOf(ctx context.Context, userID int64) (int64, error) {
	stmt := "delete from messages where recipient_id is not null and (sender_id = ? or recipient_id = ?)"
	return q.execCount(ctx, stmt, userID, userID)
}

// nullableUser receives user columns of a left join
type nullableUser struct {
	id       sql.NullInt64
	username sql.NullString
	online   sql.NullBool
	lastSeen sql.NullInt64
}

func (n *nullableUser) dest() []interface{} {
	return []interface{}{&n.id, &n.username, &n.online, &n.lastSeen}
}

func (n *nullableUser) user() *User {
	if !n.id.Valid {
		return nil
	}
	return &User{
		ID:       n.id.Int64,
		Username: n.username.String,
		IsOnline: n.online.Bool,
		LastSeen: clock.FromMillis(n.lastSeen.Int64),
	}
}
