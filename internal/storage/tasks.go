package storage

import (
	"context"
	"sessionchat/internal/clock"
	"time"
)

// EnqueueTask persists a deferred task and returns its id
func (q *Queries) EnqueueTask(ctx context.Context, t Task) (int64, error) {
	q.logger.Debugf("Scheduling task (%s) at %s", t.Kind, t.RunAt.Format(time.RFC3339Nano))

	var id int64
	stmt := `insert into scheduled_tasks (kind, payload, run_at, attempts, created_at)
			 values (?, ?, ?, 0, ?)
			 returning id`
	err := q.queryRow(ctx, stmt, t.Kind, string(t.Payload), clock.Millis(t.RunAt), clock.Millis(t.CreatedAt)).Scan(&id)
	return id, err
}

// DueTasks returns at most limit tasks with run_at not after now, oldest first
func (q *Queries) DueTasks(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	stmt := `select id, kind, payload, run_at, attempts, created_at
			   from scheduled_tasks
			  where run_at <= ?
			  order by run_at, id
			  limit ?`
	rows, err := q.query(ctx, stmt, clock.Millis(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			t              Task
			payload        string
			runAt, created int64
		)
		if err := rows.Scan(&t.ID, &t.Kind, &payload, &runAt, &t.Attempts, &created); err != nil {
			return nil, err
		}
		t.Payload = []byte(payload)
		t.RunAt = clock.FromMillis(runAt)
		t.CreatedAt = clock.FromMillis(created)
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// DeleteTask removes a completed or abandoned task
func (q *Queries) DeleteTask(ctx context.Context, id int64) error {
	_, err := q.exec(ctx, "delete from scheduled_tasks where id = ?", id)
	return err
}

// RescheduleTask moves a failed task to runAt and records the attempt
func (q *Queries) RescheduleTask(ctx context.Context, id int64, runAt time.Time, attempts int) error {
	_, err := q.exec(ctx, "update scheduled_tasks set run_at = ?, attempts = ? where id = ?", clock.Millis(runAt), attempts, id)
	return err
}

// PendingTasks counts tasks of kind waiting to run
func (q *Queries) PendingTasks(ctx context.Context, kind string) (int64, error) {
	var n int64
	err := q.queryRow(ctx, "select count(*) from scheduled_tasks where kind = ?", kind).Scan(&n)
	return n, err
}
