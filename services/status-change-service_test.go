package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NAHIAN-19/project-planner/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type approvalFixture struct {
	*env
	owner    string
	assignee string
	member   string
	outsider string
	project  *models.Project
	task     *models.Task
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	e := newEnv(t)
	f := &approvalFixture{env: e}
	f.owner = e.user(t, "olivia")
	f.assignee = e.user(t, "adam")
	f.member = e.user(t, "mia")
	f.outsider = e.user(t, "oscar")
	f.project = e.project(t, f.owner, f.assignee, f.member)
	f.task = e.task(t, f.owner, f.project, true, f.assignee)
	e.notifier.reset()
	return f
}

func TestSubmitNotifiesOwner(t *testing.T) {
	f := newApprovalFixture(t)

	r, err := f.requests.Submit(context.Background(), f.assignee, f.task.ID, "all done")
	require.NoError(t, err)

	assert.Equal(t, models.RequestPending, r.Status)
	assert.Equal(t, f.task.ID, r.TaskID)
	assert.Equal(t, f.project.ID, r.ProjectID)
	assert.Equal(t, f.assignee, r.RequestedBy)
	assert.Nil(t, r.ApprovedBy)

	ev := f.notifier.last()
	assert.Equal(t, []string{f.owner}, ev.Recipients)
	assert.Equal(t, models.NotificationApproval, ev.Type)
}

func TestAcceptCompletesTask(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	r, err := f.requests.Submit(ctx, f.assignee, f.task.ID, "all done")
	require.NoError(t, err)

	decided, err := f.requests.Decide(ctx, f.owner, r.ID, "accept")
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, decided.Status)
	require.NotNil(t, decided.ApprovedBy)
	assert.Equal(t, f.owner, *decided.ApprovedBy)

	task, err := f.store.GetTask(ctx, f.task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, task.Status)
	require.NotNil(t, task.ApprovedBy)
	assert.Equal(t, f.owner, *task.ApprovedBy)

	ev := f.notifier.last()
	assert.ElementsMatch(t, []string{f.assignee}, ev.Recipients)
}

func TestRejectLeavesTaskUnchanged(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	r, err := f.requests.Submit(ctx, f.assignee, f.task.ID, "all done")
	require.NoError(t, err)

	decided, err := f.requests.Decide(ctx, f.owner, r.ID, "reject")
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, decided.Status)
	assert.Nil(t, decided.ApprovedBy)

	task, err := f.store.GetTask(ctx, f.task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, task.Status)
	assert.Nil(t, task.ApprovedBy)

	// A rejected request frees the task for a new one.
	_, err = f.requests.Submit(ctx, f.assignee, f.task.ID, "fixed it")
	assert.NoError(t, err)
}

func TestDecideTwice(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	r, err := f.requests.Submit(ctx, f.assignee, f.task.ID, "")
	require.NoError(t, err)
	_, err = f.requests.Decide(ctx, f.owner, r.ID, "reject")
	require.NoError(t, err)

	_, err = f.requests.Decide(ctx, f.owner, r.ID, "accept")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.EqualError(t, err, "This status change request is not pending.")

	stored, err := f.store.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, stored.Status)
}

func TestDecideChecks(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	r, err := f.requests.Submit(ctx, f.assignee, f.task.ID, "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		actor  string
		id     string
		action string
		want   error
	}{
		{"invalid action", f.owner, r.ID, "approve", ErrInvalidAction},
		{"unknown request with invalid action", f.owner, "missing", "maybe", ErrNotFound},
		{"unknown request", f.owner, "missing", "accept", ErrNotFound},
		{"assignee is not owner", f.assignee, r.ID, "accept", ErrPermission},
		{"member is not owner", f.member, r.ID, "reject", ErrPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.requests.Decide(ctx, tt.actor, tt.id, tt.action)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	stored, err := f.store.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
}

func TestConcurrentDecisions(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	r, err := f.requests.Submit(ctx, f.assignee, f.task.ID, "")
	require.NoError(t, err)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		action := "accept"
		if i%2 == 1 {
			action = "reject"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.requests.Decide(ctx, f.owner, r.ID, action)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInvalidState):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)

	stored, err := f.store.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	task, err := f.store.GetTask(ctx, f.task.ID)
	require.NoError(t, err)
	if stored.Status == models.RequestApproved {
		assert.Equal(t, models.StatusCompleted, task.Status)
	} else {
		assert.Equal(t, models.RequestRejected, stored.Status)
		assert.Equal(t, models.StatusInProgress, task.Status)
	}
}

func TestSubmitPreconditions(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	noApproval := f.env.task(t, f.owner, f.project, false, f.assignee)

	_, err := f.requests.Submit(ctx, f.member, f.task.ID, "")
	assert.ErrorIs(t, err, ErrValidation, "not assigned")

	_, err = f.requests.Submit(ctx, f.assignee, noApproval.ID, "")
	assert.ErrorIs(t, err, ErrValidation, "approval not required")

	_, err = f.requests.Submit(ctx, f.assignee, "missing", "")
	assert.ErrorIs(t, err, ErrValidation, "unknown task")

	_, err = f.requests.Submit(ctx, f.assignee, f.task.ID, "")
	require.NoError(t, err)
	_, err = f.requests.Submit(ctx, f.assignee, f.task.ID, "")
	assert.ErrorIs(t, err, ErrValidation, "already pending")
}

func TestSubmitOnCompletedTask(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	r, err := f.requests.Submit(ctx, f.assignee, f.task.ID, "")
	require.NoError(t, err)
	_, err = f.requests.Decide(ctx, f.owner, r.ID, "accept")
	require.NoError(t, err)

	_, err = f.requests.Submit(ctx, f.assignee, f.task.ID, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitOnOverdueTask(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	due := time.Now().Add(time.Hour)
	task, err := f.tasks.Create(ctx, f.owner, TaskInput{
		ProjectID: f.project.ID, Name: "Deadline", NeedApproval: true, DueDate: &due, Assignees: []string{f.assignee},
	})
	require.NoError(t, err)
	f.tasks.now = func() time.Time { return due.Add(time.Hour) }
	n, err := f.tasks.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.requests.Submit(ctx, f.assignee, task.ID, "late but done")
	assert.NoError(t, err)
}

func TestUpdateReason(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	r, err := f.requests.Submit(ctx, f.assignee, f.task.ID, "first")
	require.NoError(t, err)

	_, err = f.requests.UpdateReason(ctx, f.owner, r.ID, "hijack")
	assert.ErrorIs(t, err, ErrPermission)

	updated, err := f.requests.UpdateReason(ctx, f.assignee, r.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "second", updated.Reason)

	_, err = f.requests.Decide(ctx, f.owner, r.ID, "reject")
	require.NoError(t, err)
	_, err = f.requests.UpdateReason(ctx, f.assignee, r.ID, "third")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.requests.UpdateReason(ctx, f.assignee, "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRequests(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()
	f.requests.now = clock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	var ids []string
	for i := 0; i < 3; i++ {
		task := f.env.task(t, f.owner, f.project, true, f.assignee)
		r, err := f.requests.Submit(ctx, f.assignee, task.ID, "")
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	t.Run("own requests by default, newest first", func(t *testing.T) {
		page, err := f.requests.List(ctx, f.assignee, RequestQuery{})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Count)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, DefaultPageSize, page.PageSize)
		require.Len(t, page.Results, 3)
		assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{page.Results[0].ID, page.Results[1].ID, page.Results[2].ID})

		page, err = f.requests.List(ctx, f.owner, RequestQuery{})
		require.NoError(t, err)
		assert.Equal(t, 0, page.Count)
		assert.Empty(t, page.Results)
	})

	t.Run("paging", func(t *testing.T) {
		page, err := f.requests.List(ctx, f.assignee, RequestQuery{Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Count)
		require.Len(t, page.Results, 1)
		assert.Equal(t, ids[0], page.Results[0].ID)

		page, err = f.requests.List(ctx, f.assignee, RequestQuery{PageSize: 1000})
		require.NoError(t, err)
		assert.Equal(t, MaxPageSize, page.PageSize)

		_, err = f.requests.List(ctx, f.assignee, RequestQuery{Page: -1})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("project filter requires membership", func(t *testing.T) {
		page, err := f.requests.List(ctx, f.member, RequestQuery{ProjectID: f.project.ID})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Count)

		_, err = f.requests.List(ctx, f.outsider, RequestQuery{ProjectID: f.project.ID})
		assert.ErrorIs(t, err, ErrPermission)

		_, err = f.requests.List(ctx, f.member, RequestQuery{ProjectID: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("task filter", func(t *testing.T) {
		page, err := f.requests.List(ctx, f.owner, RequestQuery{TaskID: f.task.ID})
		require.NoError(t, err)
		assert.Equal(t, 0, page.Count)

		_, err = f.requests.List(ctx, f.outsider, RequestQuery{TaskID: f.task.ID})
		assert.ErrorIs(t, err, ErrPermission)
	})
}

func TestGetRequestVisibility(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	r, err := f.requests.Submit(ctx, f.assignee, f.task.ID, "")
	require.NoError(t, err)

	for _, viewer := range []string{f.assignee, f.owner, f.member} {
		got, err := f.requests.Get(ctx, viewer, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
	}
	_, err = f.requests.Get(ctx, f.outsider, r.ID)
	assert.ErrorIs(t, err, ErrPermission)
	_, err = f.requests.Get(ctx, f.owner, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
