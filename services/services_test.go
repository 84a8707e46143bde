package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) last() models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return models.Event{}
	}
	return n.events[len(n.events)-1]
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

var testPlans = &models.PlanCatalog{
	Default: "free",
	Plans: []models.Plan{
		{Name: "free", MaxProjects: 3, MaxMembersPerProject: 5},
		{Name: "standard", MaxProjects: 20, MaxMembersPerProject: 25},
		{Name: "enterprise", MaxProjects: models.Unlimited, MaxMembersPerProject: models.Unlimited},
	},
}

type env struct {
	store    *repositories.SQLiteStore
	notifier *recordingNotifier
	users    *UserService
	projects *ProjectService
	tasks    *TaskService
	requests *StatusChangeService
	comments *CommentService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := repositories.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	n := &recordingNotifier{}
	return &env{
		store:    store,
		notifier: n,
		users:    NewUserService(store, testPlans),
		projects: NewProjectService(store, testPlans, n),
		tasks:    NewTaskService(store, n),
		requests: NewStatusChangeService(store, n),
		comments: NewCommentService(store, n),
	}
}

func (e *env) user(t *testing.T, name string) string {
	t.Helper()
	u, err := e.users.Register(context.Background(), uuid.NewString(), name, name+"@example.com")
	require.NoError(t, err)
	return u.ID
}

func (e *env) project(t *testing.T, owner string, members ...string) *models.Project {
	t.Helper()
	ctx := context.Background()
	p, err := e.projects.Create(ctx, owner, ProjectInput{Name: "Apollo"})
	require.NoError(t, err)
	for _, m := range members {
		_, err := e.projects.AddMember(ctx, owner, p.ID, m)
		require.NoError(t, err)
	}
	return p
}

func (e *env) task(t *testing.T, owner string, p *models.Project, needApproval bool, assignees ...string) *models.Task {
	t.Helper()
	task, err := e.tasks.Create(context.Background(), owner, TaskInput{
		ProjectID:    p.ID,
		Name:         "Write report",
		Status:       models.StatusInProgress,
		NeedApproval: needApproval,
		Assignees:    assignees,
	})
	require.NoError(t, err)
	return task
}

// clock returns a now function that advances one minute per call.
func clock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Minute)
		return t
	}
}
