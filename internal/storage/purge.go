package storage

import (
	"context"
	"fmt"
	"time"
)

// PurgeUser removes every trace of a departed user: directory rows, typing indicators, private
// messages and memberships (with member_count decrements), then the user row itself. Group messages
// survive. Callers must run it inside a transaction so the cascade is applied as one unit.
func (q *Queries) PurgeUser(ctx context.Context, userID int64) (PurgeReport, error) {
	q.logger.Debugf("Purging user (id: %d)", userID)

	if _, err := q.UserByID(ctx, userID); err != nil {
		return PurgeReport{}, err
	}

	return q.purge(ctx, userID)
}

// PurgeStaleUser is PurgeUser for users flagged offline or not seen since cutoff. The user is
// re-read in the same transaction and ErrUserActive is returned if they came back meanwhile.
func (q *Queries) PurgeStaleUser(ctx context.Context, userID int64, cutoff time.Time) (PurgeReport, error) {
	q.logger.Debugf("Purging stale user (id: %d)", userID)

	u, err := q.UserByID(ctx, userID)
	if err != nil {
		return PurgeReport{}, err
	}
	if u.IsOnline && !u.LastSeen.Before(cutoff) {
		return PurgeReport{}, ErrUserActive
	}

	return q.purge(ctx, userID)
}

func (q *Queries) purge(ctx context.Context, userID int64) (PurgeReport, error) {
	var (
		report PurgeReport
		err    error
	)

	if report.ActiveChats, err = q.DeleteActiveChatsOf(ctx, userID); err != nil {
		return report, fmt.Errorf("deleting active chats: %w", err)
	}

	if report.Typing, err = q.DeleteTypingOf(ctx, userID); err != nil {
		return report, fmt.Errorf("deleting typing indicators: %w", err)
	}

	if report.Messages, err = q.DeletePrivateMessagesOf(ctx, userID); err != nil {
		return report, fmt.Errorf("deleting private messages: %w", err)
	}

	groupIDs, err := q.MembershipGroupIDs(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("listing memberships: %w", err)
	}
	for _, groupID := range groupIDs {
		removed, err := q.RemoveMember(ctx, groupID, userID)
		if err != nil {
			return report, fmt.Errorf("leaving group (id: %d): %w", groupID, err)
		}
		if removed {
			report.Memberships++
		}
	}

	if _, err = q.DeleteUser(ctx, userID); err != nil {
		return report, fmt.Errorf("deleting user: %w", err)
	}

	q.logger.Debugf("Purged user (id: %d): %+v", userID, report)

	return report, nil
}
