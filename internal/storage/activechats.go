package storage

import (
	"context"
	"database/sql"
	"sessionchat/internal/clock"
)

// UpsertActiveChat inserts the directory row of (user, chat) or bumps its last message time.
// The time never moves backwards.
func (q *Queries) UpsertActiveChat(ctx context.Context, c ActiveChat) error {
	q.logger.Debugf("Touching active chat (%s) of user (id: %d)", c.ChatKey, c.UserID)

	stmt := `insert into active_chats (user_id, chat_key, chat_type, last_message_at, peer_user_id, group_id)
			 values (?, ?, ?, ?, ?, ?)
			 on conflict (user_id, chat_key) do update
			 set last_message_at = case
					when excluded.last_message_at > active_chats.last_message_at then excluded.last_message_at
					else active_chats.last_message_at
				 end`
	_, err := q.exec(ctx, stmt, c.UserID, c.ChatKey, c.ChatType, clock.Millis(c.LastMessageAt),
		nullID(c.PeerUserID), nullID(c.GroupID))
	return err
}

// ActiveChats returns directory of user ordered by last message time (from latest to oldest).
// Each row carries live unread count and current peer or group data. Rows whose peer or group
// no longer exists are skipped.
func (q *Queries) ActiveChats(ctx context.Context, userID int64) ([]ActiveChat, error) {
	q.logger.Debugf("Retrieving active chats for user (id: %d)", userID)

	stmt := `select ac.user_id,
					ac.chat_key,
					ac.chat_type,
					ac.last_message_at,
					ac.peer_user_id,
					ac.group_id,
					u.id, u.username, u.is_online, u.last_seen,
					g.id, g.name, g.description, g.is_private, g.created_by, g.member_count, g.created_at,
					(select count(*)
					   from messages m
					  where m.chat_key = ac.chat_key
						and m.sender_id <> ac.user_id
						and m.status <> ?) as unread
			   from active_chats ac
			   left join users u
				 on u.id = ac.peer_user_id
			   left join chat_groups g
				 on g.id = ac.group_id
			  where ac.user_id = ?
				and (u.id is not null or g.id is not null)
			  order by ac.last_message_at desc, ac.id desc`

	rows, err := q.query(ctx, stmt, string(StatusSeen), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []ActiveChat
	for rows.Next() {
		var (
			c             ActiveChat
			lastMessageAt int64
			peerID        sql.NullInt64
			groupID       sql.NullInt64
			peer          nullableUser
			g             nullableGroup
		)
		dest := []interface{}{&c.UserID, &c.ChatKey, &c.ChatType, &lastMessageAt, &peerID, &groupID}
		dest = append(dest, peer.dest()...)
		dest = append(dest, g.dest()...)
		dest = append(dest, &c.UnreadCount)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		c.LastMessageAt = clock.FromMillis(lastMessageAt)
		c.PeerUserID = peerID.Int64
		c.GroupID = groupID.Int64
		c.Peer = peer.user()
		c.Group = g.group()
		chats = append(chats, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	q.logger.Debugf("Retrieved %d active chats", len(chats))

	return chats, nil
}

// DeleteActiveChatsOf removes directory rows owned by the user and rows of others pointing at the user
func (q *Queries) DeleteActiveChatsOf(ctx context.Context, userID int64) (int64, error) {
	return q.execCount(ctx, "delete from active_chats where user_id = ? or peer_user_id = ?", userID, userID)
}

// nullableGroup receives group columns of a left join
type nullableGroup struct {
	id          sql.NullInt64
	name        sql.NullString
	description sql.NullString
	private     sql.NullBool
	createdBy   sql.NullInt64
	memberCount sql.NullInt64
	createdAt   sql.NullInt64
}

func (n *nullableGroup) dest() []interface{} {
	return []interface{}{&n.id, &n.name, &n.description, &n.private, &n.createdBy, &n.memberCount, &n.createdAt}
}

func (n *nullableGroup) group() *Group {
	if !n.id.Valid {
		return nil
	}
	return &Group{
		ID:          n.id.Int64,
		Name:        n.name.String,
		Description: n.description.String,
		IsPrivate:   n.private.Bool,
		CreatedBy:   n.createdBy.Int64,
		MemberCount: n.memberCount.Int64,
		CreatedAt:   clock.FromMillis(n.createdAt.Int64),
	}
}
