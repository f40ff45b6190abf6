package storage

import (
	"context"
	"database/sql"
	"errors"
	"sessionchat/internal/clock"
	"time"
)

const userColumns = "id, username, session_id, is_online, last_seen"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row scanner) (User, error) {
	var (
		u        User
		lastSeen int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.SessionID, &u.IsOnline, &lastSeen); err != nil {
		return User{}, err
	}
	u.LastSeen = clock.FromMillis(lastSeen)
	return u, nil
}

func (q *Queries) collectUsers(ctx context.Context, query string, args ...interface{}) ([]User, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// CreateUser creates online user and returns it
func (q *Queries) CreateUser(ctx context.Context, username, sessionID string, now time.Time) (User, error) {
	q.logger.Debugf("Creating user (%s)", username)

	u := User{Username: username, SessionID: sessionID, IsOnline: true, LastSeen: clock.FromMillis(clock.Millis(now))}
	stmt := "insert into users (username, session_id, is_online, last_seen) values (?, ?, ?, ?) returning id"
	err := q.queryRow(ctx, stmt, username, sessionID, true, clock.Millis(now)).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrSessionExists
		}
		return User{}, err
	}

	q.logger.Debugf("Created user (%s) with id %d", username, u.ID)

	return u, nil
}

// UserByID returns user or ErrUserNotExist
func (q *Queries) UserByID(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(q.queryRow(ctx, "select "+userColumns+" from users where id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotExist
	}
	return u, err
}

// UserBySession returns user owning the session or ErrUserNotExist
func (q *Queries) UserBySession(ctx context.Context, sessionID string) (User, error) {
	u, err := scanUser(q.queryRow(ctx, "select "+userColumns+" from users where session_id = ?", sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotExist
	}
	return u, err
}

// UsernameHeld reports whether a session other than sessionID uses username and was seen after since
// with the online flag set
func (q *Queries) UsernameHeld(ctx context.Context, username, sessionID string, since time.Time) (bool, error) {
	var i int8
	stmt := `select 1
			  from users
			 where username = ?
			   and session_id <> ?
			   and is_online = ?
			   and last_seen > ?
			 limit 1`
	err := q.queryRow(ctx, stmt, username, sessionID, true, clock.Millis(since)).Scan(&i)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RefreshUser renames the user and marks it online
func (q *Queries) RefreshUser(ctx context.Context, id int64, username string, now time.Time) error {
	n, err := q.execCount(ctx, "update users set username = ?, is_online = ?, last_seen = ? where id = ?",
		username, true, clock.Millis(now), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotExist
	}
	return nil
}

// SetPresence stores online flag and bumps last_seen
func (q *Queries) SetPresence(ctx context.Context, id int64, online bool, now time.Time) error {
	n, err := q.execCount(ctx, "update users set is_online = ?, last_seen = ? where id = ?", online, clock.Millis(now), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotExist
	}
	return nil
}

// OnlineUsers returns users flagged online and seen after since, ordered by username
func (q *Queries) OnlineUsers(ctx context.Context, since time.Time) ([]User, error) {
	stmt := "select " + userColumns + " from users where is_online = ? and last_seen > ? order by username, id"
	return q.collectUsers(ctx, stmt, true, clock.Millis(since))
}

// StaleUserIDs returns users flagged offline or not seen since cutoff
func (q *Queries) StaleUserIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return q.collectIDs(ctx, "select id from users where is_online = ? or last_seen < ? order by id", false, clock.Millis(cutoff))
}

// DeleteUser removes user row only, see PurgeUser for the full cascade
func (q *Queries) DeleteUser(ctx context.Context, id int64) (int64, error) {
	return q.execCount(ctx, "delete from users where id = ?", id)
}

func (q *Queries) collectIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
