package services

import (
	"context"
	"testing"
	"time"

	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetStatusDirectly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user(t, "olivia")
	assignee := e.user(t, "adam")
	member := e.user(t, "mia")
	p := e.project(t, owner, assignee, member)

	approval := e.task(t, owner, p, true, assignee)
	direct := e.task(t, owner, p, false, assignee)

	_, err := e.tasks.SetStatusDirectly(ctx, assignee, approval.ID, models.StatusCompleted)
	assert.ErrorIs(t, err, ErrPermission)
	assert.EqualError(t, err, "Task requires approval to change status.")

	_, err = e.tasks.SetStatusDirectly(ctx, member, direct.ID, models.StatusCompleted)
	assert.ErrorIs(t, err, ErrPermission)
	assert.EqualError(t, err, "You must be assigned to the task to change its status.")

	_, err = e.tasks.SetStatusDirectly(ctx, assignee, direct.ID, models.StatusNotStarted)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.tasks.SetStatusDirectly(ctx, assignee, "missing", models.StatusCompleted)
	assert.ErrorIs(t, err, ErrNotFound)

	e.notifier.reset()
	task, err := e.tasks.SetStatusDirectly(ctx, assignee, direct.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, task.Status)
	assert.Equal(t, []string{owner}, e.notifier.last().Recipients)

	stored, err := e.store.GetTask(ctx, approval.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
}

func TestCreateTaskRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user(t, "olivia")
	member := e.user(t, "mia")
	outsider := e.user(t, "oscar")
	p := e.project(t, owner, member)

	past := time.Now().Add(-time.Hour)
	tests := []struct {
		name  string
		actor string
		in    TaskInput
		want  error
	}{
		{"outsider", outsider, TaskInput{ProjectID: p.ID, Name: "x"}, ErrPermission},
		{"missing project", owner, TaskInput{ProjectID: "missing", Name: "x"}, ErrNotFound},
		{"no name", owner, TaskInput{ProjectID: p.ID}, ErrValidation},
		{"created completed", owner, TaskInput{ProjectID: p.ID, Name: "x", Status: models.StatusCompleted}, ErrValidation},
		{"unknown status", owner, TaskInput{ProjectID: p.ID, Name: "x", Status: "done"}, ErrValidation},
		{"due in the past", owner, TaskInput{ProjectID: p.ID, Name: "x", DueDate: &past}, ErrValidation},
		{"assignee outside project", owner, TaskInput{ProjectID: p.ID, Name: "x", Assignees: []string{outsider}}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.tasks.Create(ctx, tt.actor, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	e.notifier.reset()
	task, err := e.tasks.Create(ctx, member, TaskInput{ProjectID: p.ID, Name: "Review", Assignees: []string{owner, member, owner}})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotStarted, task.Status)
	assert.Equal(t, []string{owner, member}, task.Assignees)
	assert.Equal(t, []string{owner}, e.notifier.last().Recipients)
}

func TestUpdateTaskOwnerOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user(t, "olivia")
	member := e.user(t, "mia")
	p := e.project(t, owner, member)
	task := e.task(t, owner, p, false, member)

	name := "Renamed"
	_, err := e.tasks.Update(ctx, member, task.ID, TaskPatch{Name: &name})
	assert.ErrorIs(t, err, ErrPermission)
	assert.EqualError(t, err, "Only the project owner can update this task.")

	completed := models.StatusCompleted
	_, err = e.tasks.Update(ctx, owner, task.ID, TaskPatch{Status: &completed})
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := e.tasks.Update(ctx, owner, task.ID, TaskPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
}

// interleavingStore runs beforeUpdate once, after the service has read the task and
// before its write reaches the database.
type interleavingStore struct {
	*repositories.SQLiteStore
	beforeUpdate func()
}

func (s *interleavingStore) UpdateTask(ctx context.Context, id string, u models.TaskUpdate) error {
	if hook := s.beforeUpdate; hook != nil {
		s.beforeUpdate = nil
		hook()
	}
	return s.SQLiteStore.UpdateTask(ctx, id, u)
}

func TestUpdateDoesNotUndoApproval(t *testing.T) {
	ctx := context.Background()

	t.Run("rename while accepted", func(t *testing.T) {
		f := newApprovalFixture(t)
		r, err := f.requests.Submit(ctx, f.assignee, f.task.ID, "done")
		require.NoError(t, err)

		store := &interleavingStore{SQLiteStore: f.store}
		store.beforeUpdate = func() {
			_, err := f.requests.Decide(ctx, f.owner, r.ID, "accept")
			require.NoError(t, err)
		}
		tasks := NewTaskService(store, f.notifier)

		name := "Final report"
		updated, err := tasks.Update(ctx, f.owner, f.task.ID, TaskPatch{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, name, updated.Name)
		assert.Equal(t, models.StatusCompleted, updated.Status)

		stored, err := f.store.GetRequest(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestApproved, stored.Status)
	})

	t.Run("status change while accepted", func(t *testing.T) {
		f := newApprovalFixture(t)
		r, err := f.requests.Submit(ctx, f.assignee, f.task.ID, "done")
		require.NoError(t, err)

		store := &interleavingStore{SQLiteStore: f.store}
		store.beforeUpdate = func() {
			_, err := f.requests.Decide(ctx, f.owner, r.ID, "accept")
			require.NoError(t, err)
		}
		tasks := NewTaskService(store, f.notifier)

		back := models.StatusNotStarted
		_, err = tasks.Update(ctx, f.owner, f.task.ID, TaskPatch{Status: &back})
		assert.ErrorIs(t, err, ErrInvalidState)

		task, err := f.store.GetTask(ctx, f.task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, task.Status)
	})

	t.Run("reopen after approval", func(t *testing.T) {
		f := newApprovalFixture(t)
		r, err := f.requests.Submit(ctx, f.assignee, f.task.ID, "done")
		require.NoError(t, err)
		_, err = f.requests.Decide(ctx, f.owner, r.ID, "accept")
		require.NoError(t, err)

		back := models.StatusInProgress
		_, err = f.tasks.Update(ctx, f.owner, f.task.ID, TaskPatch{Status: &back})
		assert.ErrorIs(t, err, ErrInvalidState)

		task, err := f.store.GetTask(ctx, f.task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, task.Status)
	})
}

func TestUpdateStatusConflictsWithDirectCompletion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user(t, "olivia")
	assignee := e.user(t, "adam")
	p := e.project(t, owner, assignee)
	task := e.task(t, owner, p, false, assignee)

	store := &interleavingStore{SQLiteStore: e.store}
	store.beforeUpdate = func() {
		_, err := e.tasks.SetStatusDirectly(ctx, assignee, task.ID, models.StatusCompleted)
		require.NoError(t, err)
	}
	tasks := NewTaskService(store, e.notifier)

	started := models.StatusNotStarted
	_, err := tasks.Update(ctx, owner, task.ID, TaskPatch{Status: &started})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := e.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestAssignAndUnassign(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user(t, "olivia")
	member := e.user(t, "mia")
	outsider := e.user(t, "oscar")
	p := e.project(t, owner, member)
	task := e.task(t, owner, p, false)

	_, err := e.tasks.Assign(ctx, owner, task.ID, outsider)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.tasks.Assign(ctx, owner, task.ID, member)
	require.NoError(t, err)
	_, err = e.tasks.Assign(ctx, owner, task.ID, member)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, e.tasks.Unassign(ctx, owner, task.ID, member))
	assert.ErrorIs(t, e.tasks.Unassign(ctx, owner, task.ID, member), ErrNotFound)
}

func TestListTasksScopedToProjects(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.user(t, "olivia")
	other := e.user(t, "otto")
	mine := e.project(t, owner)
	theirs := e.project(t, other)
	e.task(t, owner, mine, false)
	e.task(t, other, theirs, false)

	tasks, err := e.tasks.List(ctx, owner, TaskQuery{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, mine.ID, tasks[0].ProjectID)

	_, err = e.tasks.List(ctx, owner, TaskQuery{ProjectID: theirs.ID})
	assert.ErrorIs(t, err, ErrPermission)
}
