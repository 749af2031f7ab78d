package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/jobs"
)

type recordingClient struct {
	tasks []*asynq.Task
}

func (c *recordingClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type fixedInspector struct {
	info *asynq.QueueInfo
}

func (f fixedInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, nil
}

func TestRunJobsTrigger(t *testing.T) {
	client := &recordingClient{}
	cli := &jobsCLI{client: client}
	var out bytes.Buffer

	require.NoError(t, runJobs(context.Background(), cli, []string{"trigger", "reorder-scan", "-horizon", "30"}, &out))
	require.Len(t, client.tasks, 1)
	require.Equal(t, jobs.TaskReorderScan, client.tasks[0].Type())
	require.JSONEq(t, `{"horizon_days":30}`, string(client.tasks[0].Payload()))
	require.Contains(t, out.String(), "enqueued inventory:reorder_scan id=t1")

	require.NoError(t, runJobs(context.Background(), cli, []string{"trigger", jobs.TaskIdempotencyCleanup}, &out))
	require.Equal(t, jobs.TaskIdempotencyCleanup, client.tasks[1].Type())

	require.ErrorContains(t, runJobs(context.Background(), cli, []string{"trigger", "reindex"}, &out), "unsupported job")
	require.Error(t, runJobs(context.Background(), cli, []string{"trigger"}, &out))
	require.Error(t, runJobs(context.Background(), cli, nil, &out))
}

func TestRunJobsStats(t *testing.T) {
	cli := &jobsCLI{inspector: fixedInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 2, Retry: 1}}}
	var out bytes.Buffer
	require.NoError(t, runJobs(context.Background(), cli, []string{"stats"}, &out))
	require.Contains(t, out.String(), `"pending": 2`)
	require.Contains(t, out.String(), `"retry": 1`)

	_, err := (&jobsCLI{}).stats()
	require.Error(t, err)
}

type scriptRecorder struct {
	scripts []string
	err     error
}

func (s *scriptRecorder) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.scripts = append(s.scripts, sql)
	return pgconn.CommandTag{}, s.err
}

func TestApplyMigrations(t *testing.T) {
	rec := &scriptRecorder{}
	var out bytes.Buffer
	require.NoError(t, applyMigrations(context.Background(), rec, &out))
	require.NotEmpty(t, rec.scripts)
	require.True(t, strings.Contains(rec.scripts[0], "inventory_tx"))
	require.Contains(t, out.String(), "applied 0001_inventory.sql")

	rec.err = errors.New("permission denied")
	require.ErrorContains(t, applyMigrations(context.Background(), rec, &out), "apply 0001_inventory.sql")
}
