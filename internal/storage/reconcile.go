package storage

import (
	"context"
	"fmt"
)

// Reconcile recomputes derived state from source rows in a single transaction:
// memberships of vanished users or groups are dropped, member_count is recomputed from memberships,
// directory rows pointing at vanished users or groups are dropped, typing indicators of vanished
// users are dropped and private messages whose sender or recipient is gone are dropped.
func (s *Store) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	err := s.InTx(ctx, func(tx *Tx) error {
		report = ReconcileReport{}

		steps := []struct {
			name string
			dst  *int64
			stmt string
		}{
			{
				name: "memberships",
				dst:  &report.Memberships,
				stmt: `delete from group_members
						where user_id not in (select id from users)
						   or group_id not in (select id from chat_groups)`,
			},
			{
				name: "member counts",
				dst:  &report.MemberCounts,
				stmt: `update chat_groups
						  set member_count = (select count(*) from group_members m where m.group_id = chat_groups.id)
						where member_count <> (select count(*) from group_members m where m.group_id = chat_groups.id)`,
			},
			{
				name: "active chats",
				dst:  &report.ActiveChats,
				stmt: `delete from active_chats
						where user_id not in (select id from users)
						   or (peer_user_id is not null and peer_user_id not in (select id from users))
						   or (group_id is not null and group_id not in (select id from chat_groups))`,
			},
			{
				name: "typing indicators",
				dst:  &report.Typing,
				stmt: `delete from typing_indicators where user_id not in (select id from users)`,
			},
			{
				name: "private messages",
				dst:  &report.Messages,
				stmt: `delete from messages
						where recipient_id is not null
						  and (sender_id not in (select id from users) or recipient_id not in (select id from users))`,
			},
		}

		for _, step := range steps {
			n, err := tx.execCount(ctx, step.stmt)
			if err != nil {
				return fmt.Errorf("reconciling %s: %w", step.name, err)
			}
			*step.dst = n
		}

		return nil
	})
	if err != nil {
		return ReconcileReport{}, err
	}

	if report.Total() > 0 {
		s.logger.Infof("Reconciled derived state: %+v", report)
	}

	return report, nil
}
