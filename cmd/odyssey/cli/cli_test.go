package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-books/internal/auth"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/rbac"
	"github.com/odyssey-erp/odyssey-books/jobs"
)

type stubEnqueuer struct {
	tasks  []*asynq.Task
	closed bool
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(s.tasks)), Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error {
	s.closed = true
	return nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }
func (s stubInspector) Close() error                                  { return nil }

type stubCreator struct {
	got []rbac.Role
}

func (s *stubCreator) CreateUser(_ context.Context, email, name, password string, role rbac.Role) (*auth.User, error) {
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", httpx.ErrValidation)
	}
	s.got = append(s.got, role)
	return &auth.User{ID: 7, Email: email, Name: name, Role: string(role), IsActive: true}, nil
}

func testEnv(enq *stubEnqueuer, inspector stubInspector, creator *stubCreator) (Env, *bytes.Buffer, *bytes.Buffer) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	return Env{
		Jobs: func() (*JobsCLI, error) {
			return &JobsCLI{client: enq, inspector: inspector}, nil
		},
		Users: func(context.Context) (*UsersCLI, func(), error) {
			return NewUsersCLI(creator), func() {}, nil
		},
		Stdout: stdout,
		Stderr: stderr,
	}, stdout, stderr
}

func TestJobsTrigger(t *testing.T) {
	nowUTC = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { nowUTC = func() time.Time { return time.Now().UTC() } })

	enq := &stubEnqueuer{}
	env, stdout, _ := testEnv(enq, stubInspector{}, nil)

	code := Run(context.Background(), []string{"jobs", "trigger", "--json", jobs.TaskReconcile}, env)
	require.Zero(t, code)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, jobs.TaskReconcile, enq.tasks[0].Type())
	assert.True(t, enq.closed)

	var out map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, "task-1", out["id"])
	assert.Equal(t, jobs.TaskReconcile, out["type"])

	var payload jobs.SweepPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, "2026-05-01", payload.ScheduledFor.Format("2006-01-02"))
}

func TestJobsTriggerRejectsUnknownName(t *testing.T) {
	enq := &stubEnqueuer{}
	env, _, stderr := testEnv(enq, stubInspector{}, nil)

	assert.Equal(t, 1, Run(context.Background(), []string{"jobs", "trigger", "mail:send"}, env))
	assert.Contains(t, stderr.String(), jobs.TaskOverdueSweep)
	assert.Empty(t, enq.tasks)

	stderr.Reset()
	assert.Equal(t, 2, Run(context.Background(), []string{"jobs", "trigger"}, env))
	assert.Contains(t, stderr.String(), "job name required")
}

func TestJobsStats(t *testing.T) {
	env, stdout, _ := testEnv(&stubEnqueuer{}, stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4, Retry: 1}}, nil)
	require.Zero(t, Run(context.Background(), []string{"jobs", "stats"}, env))
	assert.Equal(t, "queue=default pending=4 active=0 scheduled=0 retry=1\n", stdout.String())

	env, stdout, _ = testEnv(&stubEnqueuer{}, stubInspector{err: asynq.ErrQueueNotFound}, nil)
	require.Zero(t, Run(context.Background(), []string{"jobs", "stats"}, env))
	assert.Contains(t, stdout.String(), "pending=0")

	env, _, stderr := testEnv(&stubEnqueuer{}, stubInspector{err: errors.New("connection refused")}, nil)
	assert.Equal(t, 1, Run(context.Background(), []string{"jobs", "stats"}, env))
	assert.Contains(t, stderr.String(), "connection refused")
}

func TestUsersCreate(t *testing.T) {
	creator := &stubCreator{}
	env, stdout, stderr := testEnv(nil, stubInspector{}, creator)

	code := Run(context.Background(), []string{"users", "create", "--email", "owner@shop.test", "--name", "Owner", "--password", "longenough", "--role", "admin"}, env)
	require.Zero(t, code, stderr.String())
	assert.Equal(t, "created user 7 <owner@shop.test> with role admin\n", stdout.String())
	assert.Equal(t, []rbac.Role{rbac.RoleAdmin}, creator.got)

	stdout.Reset()
	require.Zero(t, Run(context.Background(), []string{"users", "create", "--email", "clerk@shop.test", "--password", "longenough", "--json"}, env))
	var user auth.User
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &user))
	assert.Equal(t, "staff", string(user.Role))
}

func TestUsersCreateFailures(t *testing.T) {
	creator := &stubCreator{}
	env, _, stderr := testEnv(nil, stubInspector{}, creator)

	assert.Equal(t, 2, Run(context.Background(), []string{"users", "create", "--email", "a@b.test", "--password", "longenough", "--role", "owner"}, env))
	assert.Contains(t, stderr.String(), "unknown role")

	stderr.Reset()
	assert.Equal(t, 1, Run(context.Background(), []string{"users", "create", "--email", "a@b.test", "--password", "short"}, env))
	assert.Contains(t, stderr.String(), "password")
	assert.Empty(t, creator.got)
}

func TestRunUsage(t *testing.T) {
	env, _, stderr := testEnv(nil, stubInspector{}, nil)
	assert.Equal(t, 2, Run(context.Background(), []string{"jobs"}, env))
	assert.Equal(t, 2, Run(context.Background(), []string{"users", "delete"}, env))
	assert.Contains(t, stderr.String(), "usage:")
	assert.True(t, IsCommand("users"))
	assert.False(t, IsCommand("serve"))
}
