package storage

import (
	"context"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestTaskLifecycle(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	late, err := s.EnqueueTask(ctx, Task{Kind: "k", Payload: []byte(`{"n":2}`), RunAt: t0.Add(time.Second), CreatedAt: t0})
	require.NoError(t, err)
	early, err := s.EnqueueTask(ctx, Task{Kind: "k", Payload: []byte(`{"n":1}`), RunAt: t0, CreatedAt: t0})
	require.NoError(t, err)

	tasks, err := s.DueTasks(ctx, t0, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, early, tasks[0].ID)
	require.Equal(t, `{"n":1}`, string(tasks[0].Payload))
	require.Zero(t, tasks[0].Attempts)

	tasks, err = s.DueTasks(ctx, t0.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, []int64{early, late}, []int64{tasks[0].ID, tasks[1].ID})

	tasks, err = s.DueTasks(ctx, t0.Add(time.Second), 1)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, s.RescheduleTask(ctx, early, t0.Add(time.Minute), 1))
	tasks, err = s.DueTasks(ctx, t0.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, late, tasks[0].ID)

	tasks, err = s.DueTasks(ctx, t0.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, 1, tasks[1].Attempts)

	require.NoError(t, s.DeleteTask(ctx, late))
	n, err := s.PendingTasks(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
