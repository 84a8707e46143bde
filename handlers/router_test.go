package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/realtime"
	"github.com/NAHIAN-19/project-planner/repositories"
	"github.com/NAHIAN-19/project-planner/services"
	"github.com/NAHIAN-19/project-planner/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("handler-secret")

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, models.Event) {}

type testEnv struct {
	router http.Handler
	users  map[string]string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := repositories.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	plans := &models.PlanCatalog{Default: "free", Plans: []models.Plan{
		{Name: "free", MaxProjects: 3, MaxMembersPerProject: 5},
		{Name: "enterprise", MaxProjects: models.Unlimited, MaxMembersPerProject: models.Unlimited},
	}}
	hub := realtime.NewHub("*")
	t.Cleanup(hub.Close)

	var n discardNotifier
	router := NewRouter(Handlers{
		Users:         NewUserHandler(services.NewUserService(store, plans)),
		Projects:      NewProjectHandler(services.NewProjectService(store, plans, n)),
		Tasks:         NewTaskHandler(services.NewTaskService(store, n)),
		Comments:      NewCommentHandler(services.NewCommentService(store, n)),
		Requests:      NewStatusChangeHandler(services.NewStatusChangeService(store, n)),
		Notifications: NewNotificationHandler(services.NewNotificationService(repositories.NewSQLiteNotificationRepo(store)), hub),
		Store:         store,
	}, testSecret)

	env := &testEnv{router: router, users: map[string]string{}}
	for _, name := range []string{"olivia", "adam", "mia", "oscar"} {
		env.users[name] = uuid.NewString()
		w := env.do(t, name, http.MethodPost, "/api/users", map[string]any{"username": name, "email": name + "@example.com"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	return env
}

func (e *testEnv) bearerFor(t *testing.T, name string) string {
	t.Helper()
	tok, err := utils.GenerateToken(testSecret, e.users[name], name, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (e *testEnv) do(t *testing.T, as, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", e.bearerFor(t, as))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seedApproval creates a project owned by olivia with adam and mia as members and a task
// assigned to adam.
func (e *testEnv) seedApproval(t *testing.T, needApproval bool) (project models.Project, task models.Task) {
	t.Helper()
	w := e.do(t, "olivia", http.MethodPost, "/api/projects", map[string]any{"name": "Apollo"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	project = decode[models.Project](t, w)

	for _, name := range []string{"adam", "mia"} {
		w = e.do(t, "olivia", http.MethodPost, "/api/projects/"+project.ID+"/members", map[string]any{"userId": e.users[name]})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w = e.do(t, "olivia", http.MethodPost, "/api/tasks", map[string]any{
		"projectId":    project.ID,
		"name":         "Write report",
		"status":       "in_progress",
		"needApproval": needApproval,
		"assignees":    []string{e.users["adam"]},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	task = decode[models.Task](t, w)
	return project, task
}

func TestHealthIsPublic(t *testing.T) {
	env := setupTestEnv(t)
	w := env.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	env := setupTestEnv(t)
	w := env.do(t, "", http.MethodGet, "/api/projects", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "error", decode[errorBody](t, w).Status)
}

func TestApprovalFlow(t *testing.T) {
	env := setupTestEnv(t)
	_, task := env.seedApproval(t, true)

	w := env.do(t, "adam", http.MethodPost, "/api/status-change-requests/", map[string]any{"task": task.ID, "reason": "done"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decode[models.StatusChangeRequest](t, w)
	assert.Equal(t, models.RequestPending, req.Status)

	w = env.do(t, "adam", http.MethodPost, "/api/status-change-requests/", map[string]any{"task": task.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code, "second pending request")

	w = env.do(t, "adam", http.MethodPost, "/api/status-change-requests/"+req.ID+"/action/", map[string]any{"action": "accept"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "olivia", http.MethodPost, "/api/status-change-requests/"+req.ID+"/action/", map[string]any{"action": "approve"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid action. Must be 'accept' or 'reject'.", decode[errorBody](t, w).Message)

	w = env.do(t, "olivia", http.MethodPost, "/api/status-change-requests/"+req.ID+"/action/", map[string]any{"action": "accept"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decided := decode[models.StatusChangeRequest](t, w)
	assert.Equal(t, models.RequestApproved, decided.Status)
	require.NotNil(t, decided.ApprovedBy)
	assert.Equal(t, env.users["olivia"], *decided.ApprovedBy)

	w = env.do(t, "olivia", http.MethodPost, "/api/status-change-requests/"+req.ID+"/action/", map[string]any{"action": "reject"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "This status change request is not pending.", decode[errorBody](t, w).Message)

	w = env.do(t, "adam", http.MethodGet, "/api/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusCompleted, decode[models.Task](t, w).Status)

	w = env.do(t, "olivia", http.MethodPatch, "/api/tasks/"+task.ID, map[string]any{"status": "in_progress"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "approved completion is final")
	w = env.do(t, "olivia", http.MethodPatch, "/api/tasks/"+task.ID, map[string]any{"name": "Final report"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	renamed := decode[models.Task](t, w)
	assert.Equal(t, "Final report", renamed.Name)
	assert.Equal(t, models.StatusCompleted, renamed.Status)

	w = env.do(t, "olivia", http.MethodPost, "/api/status-change-requests/missing/action/", map[string]any{"action": "accept"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, "olivia", http.MethodPost, "/api/status-change-requests/missing/action/", map[string]any{"action": "maybe"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListStatusChangeRequests(t *testing.T) {
	env := setupTestEnv(t)
	project, task := env.seedApproval(t, true)

	w := env.do(t, "adam", http.MethodPost, "/api/status-change-requests/", map[string]any{"task": task.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, "adam", http.MethodGet, "/api/status-change-requests/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[services.RequestPage](t, w)
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, services.DefaultPageSize, page.PageSize)

	w = env.do(t, "mia", http.MethodGet, "/api/status-change-requests/?project_id="+project.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[services.RequestPage](t, w).Count)

	w = env.do(t, "oscar", http.MethodGet, "/api/status-change-requests/?project_id="+project.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "adam", http.MethodGet, "/api/status-change-requests/?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateReasonEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	_, task := env.seedApproval(t, true)

	w := env.do(t, "adam", http.MethodPost, "/api/status-change-requests/", map[string]any{"task": task.ID, "reason": "v1"})
	require.Equal(t, http.StatusCreated, w.Code)
	req := decode[models.StatusChangeRequest](t, w)

	w = env.do(t, "adam", http.MethodPatch, "/api/status-change-requests/"+req.ID+"/", map[string]any{"reason": "v2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "v2", decode[models.StatusChangeRequest](t, w).Reason)

	w = env.do(t, "mia", http.MethodPatch, "/api/status-change-requests/"+req.ID+"/", map[string]any{"reason": "v3"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "mia", http.MethodGet, "/api/status-change-requests/"+req.ID+"/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDirectStatusEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	_, approval := env.seedApproval(t, true)
	_, direct := env.seedApproval(t, false)

	w := env.do(t, "adam", http.MethodPatch, "/api/tasks/"+approval.ID+"/status", map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Task requires approval to change status.", decode[errorBody](t, w).Message)

	w = env.do(t, "mia", http.MethodPatch, "/api/tasks/"+direct.ID+"/status", map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "adam", http.MethodPatch, "/api/tasks/"+direct.ID+"/status", map[string]any{"status": "not_started"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "adam", http.MethodPatch, "/api/tasks/"+direct.ID+"/status", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.StatusCompleted, decode[models.Task](t, w).Status)
}

func TestSchemaRejection(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, "olivia", http.MethodPost, "/api/projects", map[string]any{"description": "no name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "olivia", http.MethodPut, "/api/notifications/preferences", map[string]any{"sms": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlanLimitEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	for i := 0; i < 3; i++ {
		w := env.do(t, "oscar", http.MethodPost, "/api/projects", map[string]any{"name": "p"})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := env.do(t, "oscar", http.MethodPost, "/api/projects", map[string]any{"name": "p"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "oscar", http.MethodPut, "/api/users/me/plan", map[string]any{"plan": "enterprise"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, "oscar", http.MethodPost, "/api/projects", map[string]any{"name": "p"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCommentEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	_, task := env.seedApproval(t, false)

	w := env.do(t, "adam", http.MethodPost, "/api/tasks/"+task.ID+"/comments", map[string]any{"content": "on it"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	comment := decode[models.Comment](t, w)

	w = env.do(t, "mia", http.MethodPost, "/api/tasks/"+task.ID+"/comments", map[string]any{"content": "me too"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "mia", http.MethodGet, "/api/tasks/"+task.ID+"/comments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Comment](t, w), 1)

	w = env.do(t, "olivia", http.MethodPatch, "/api/comments/"+comment.ID, map[string]any{"content": "mine now"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.do(t, "adam", http.MethodPatch, "/api/comments/"+comment.ID, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, "adam", http.MethodPatch, "/api/comments/"+comment.ID, map[string]any{"content": "done"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "done", decode[models.Comment](t, w).Content)

	w = env.do(t, "adam", http.MethodDelete, "/api/comments/"+comment.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestNotificationPreferencesEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, "adam", http.MethodPut, "/api/notifications/preferences", map[string]any{"comment": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	prefs := decode[map[string]bool](t, w)
	assert.False(t, prefs["comment"])
	assert.True(t, prefs["approval"])

	w = env.do(t, "adam", http.MethodPut, "/api/notifications/unknown/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
