package storage

import (
	"context"
	"database/sql"
	"errors"
	"sessionchat/internal/clock"
	"time"
)

const groupColumns = "g.id, g.name, g.description, g.is_private, g.password_hash, g.created_by, g.member_count, g.created_at"

func scanGroup(row scanner) (Group, error) {
	var (
		g           Group
		description sql.NullString
		hash        sql.NullString
		createdAt   int64
	)
	err := row.Scan(&g.ID, &g.Name, &description, &g.IsPrivate, &hash, &g.CreatedBy, &g.MemberCount, &createdAt)
	if err != nil {
		return Group{}, err
	}
	g.Description = description.String
	g.PasswordHash = hash.String
	g.CreatedAt = clock.FromMillis(createdAt)
	return g, nil
}

func (q *Queries) collectGroups(ctx context.Context, query string, args ...interface{}) ([]Group, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateGroup inserts group without members and returns it. Members are added with AddMember only,
// so member_count is always maintained by the same code path.
func (q *Queries) CreateGroup(ctx context.Context, g Group) (Group, error) {
	q.logger.Debugf("Creating group (%s) owned by user (id: %d)", g.Name, g.CreatedBy)

	stmt := `insert into chat_groups (name, description, is_private, password_hash, created_by, member_count, created_at)
			 values (?, ?, ?, ?, ?, 0, ?)
			 returning id`
	err := q.queryRow(ctx, stmt, g.Name, nullString(g.Description), g.IsPrivate, nullString(g.PasswordHash),
		g.CreatedBy, clock.Millis(g.CreatedAt)).Scan(&g.ID)
	if err != nil {
		return Group{}, err
	}
	g.MemberCount = 0
	g.CreatedAt = clock.FromMillis(clock.Millis(g.CreatedAt))

	q.logger.Debugf("Created group (%s) with id %d", g.Name, g.ID)

	return g, nil
}

// GroupByID returns group or ErrGroupNotExist
func (q *Queries) GroupByID(ctx context.Context, id int64) (Group, error) {
	g, err := scanGroup(q.queryRow(ctx, "select "+groupColumns+" from chat_groups g where g.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, ErrGroupNotExist
	}
	return g, err
}

// PublicGroups returns all groups not flagged private
func (q *Queries) PublicGroups(ctx context.Context) ([]Group, error) {
	return q.collectGroups(ctx, "select "+groupColumns+" from chat_groups g where g.is_private = ? order by g.id", false)
}

// UserGroups returns groups the user is member of in joining order
func (q *Queries) UserGroups(ctx context.Context, userID int64) ([]Group, error) {
	stmt := `select ` + groupColumns + `
			   from group_members m
			   join chat_groups g
				 on g.id = m.group_id
			  where m.user_id = ?
			  order by m.joined_at, m.id`
	return q.collectGroups(ctx, stmt, userID)
}

// IsMember reports whether user belongs to group
func (q *Queries) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var i int8
	err := q.queryRow(ctx, "select 1 from group_members where group_id = ? and user_id = ?", groupID, userID).Scan(&i)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddMember inserts membership and increments member_count in the same statement sequence.
// It returns false without touching the counter when the membership already exists.
// Callers must run it inside a transaction.
func (q *Queries) AddMember(ctx context.Context, groupID, userID int64, now time.Time) (bool, error) {
	q.logger.Debugf("Adding user (id: %d) to group (id: %d)", userID, groupID)

	stmt := `insert into group_members (group_id, user_id, joined_at)
			 values (?, ?, ?)
			 on conflict (group_id, user_id) do nothing`
	n, err := q.execCount(ctx, stmt, groupID, userID, clock.Millis(now))
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	n, err = q.execCount(ctx, "update chat_groups set member_count = member_count + 1 where id = ?", groupID)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrGroupNotExist
	}

	return true, nil
}

// RemoveMember deletes membership and decrements member_count clamped at zero.
// A vanished group is tolerated: the membership is still removed.
// Callers must run it inside a transaction.
func (q *Queries) RemoveMember(ctx context.Context, groupID, userID int64) (bool, error) {
	q.logger.Debugf("Removing user (id: %d) from group (id: %d)", userID, groupID)

	n, err := q.execCount(ctx, "delete from group_members where group_id = ? and user_id = ?", groupID, userID)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	stmt := `update chat_groups
				set member_count = case when member_count > 0 then member_count - 1 else 0 end
			  where id = ?`
	n, err = q.execCount(ctx, stmt, groupID)
	if err != nil {
		return false, err
	}
	if n == 0 {
		q.logger.Debugf("Group (id: %d) is gone, member count not updated", groupID)
	}

	return true, nil
}

// MembershipGroupIDs returns ids of groups the user is member of
func (q *Queries) MembershipGroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	return q.collectIDs(ctx, "select group_id from group_members where user_id = ? order by group_id", userID)
}

// CountMembers counts membership rows, the source of truth for member_count
func (q *Queries) CountMembers(ctx context.Context, groupID int64) (int64, error) {
	var n int64
	err := q.queryRow(ctx, "select count(*) from group_members where group_id = ?", groupID).Scan(&n)
	return n, err
}
