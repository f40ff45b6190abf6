package storage

import (
	"context"
	"sessionchat/internal/clock"
	"time"
)

// UpsertTyping records the latest typing state of user in chat
func (q *Queries) UpsertTyping(ctx context.Context, userID int64, chatKey string, typing bool, now time.Time) error {
	stmt := `insert into typing_indicators (user_id, chat_key, is_typing, last_update)
			 values (?, ?, ?, ?)
			 on conflict (user_id, chat_key) do update
			 set is_typing = excluded.is_typing,
				 last_update = excluded.last_update`
	_, err := q.exec(ctx, stmt, userID, chatKey, typing, clock.Millis(now))
	return err
}

// ActiveTyping returns indicators of chat with typing flag set and updated after since,
// joined with their users. Indicators of vanished users are skipped.
func (q *Queries) ActiveTyping(ctx context.Context, chatKey string, since time.Time) ([]TypingIndicator, error) {
	stmt := `select t.user_id, t.chat_key, t.is_typing, t.last_update,
					u.id, u.username, u.is_online, u.last_seen
			   from typing_indicators t
			   join users u
				 on u.id = t.user_id
			  where t.chat_key = ?
				and t.is_typing = ?
				and t.last_update > ?
			  order by t.last_update, t.user_id`
	return q.collectTyping(ctx, stmt, chatKey, true, clock.Millis(since))
}

// TypingRows returns every indicator row of chat regardless of state, for inspection
func (q *Queries) TypingRows(ctx context.Context, chatKey string) ([]TypingIndicator, error) {
	stmt := `select t.user_id, t.chat_key, t.is_typing, t.last_update,
					u.id, u.username, u.is_online, u.last_seen
			   from typing_indicators t
			   left join users u
				 on u.id = t.user_id
			  where t.chat_key = ?
			  order by t.user_id`
	return q.collectTyping(ctx, stmt, chatKey)
}

func (q *Queries) collectTyping(ctx context.Context, query string, args ...interface{}) ([]TypingIndicator, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indicators []TypingIndicator
	for rows.Next() {
		var (
			t          TypingIndicator
			lastUpdate int64
			u          nullableUser
		)
		dest := append([]interface{}{&t.UserID, &t.ChatKey, &t.IsTyping, &lastUpdate}, u.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		t.LastUpdate = clock.FromMillis(lastUpdate)
		t.User = u.user()
		indicators = append(indicators, t)
	}

	return indicators, rows.Err()
}

// DeleteTypingBefore removes indicators not updated since cutoff, whatever their flag
func (q *Queries) DeleteTypingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return q.execCount(ctx, "delete from typing_indicators where last_update < ?", clock.Millis(cutoff))
}

// DeleteTypingOf removes indicators of the user
func (q *Queries) DeleteTypingOf(ctx context.Context, userID int64) (int64, error) {
	return q.execCount(ctx, "delete from typing_indicators where user_id = ?", userID)
}
