package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/NAHIAN-19/project-planner/middleware"
	"github.com/gorilla/mux"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Users         *UserHandler
	Projects      *ProjectHandler
	Tasks         *TaskHandler
	Comments      *CommentHandler
	Requests      *StatusChangeHandler
	Notifications *NotificationHandler
	Store         Pinger
}

// NewRouter mounts every route. /api and /ws require a JWT; /health does not.
func NewRouter(h Handlers, jwtSecret []byte) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(middleware.JWTAuth(jwtSecret, true))
	ws.HandleFunc("/notifications", h.Notifications.Stream).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.JWTAuth(jwtSecret, false))

	api.HandleFunc("/users", h.Users.Register).Methods(http.MethodPost)
	api.HandleFunc("/users/me", h.Users.Me).Methods(http.MethodGet)
	api.HandleFunc("/users/me/plan", h.Users.ChangePlan).Methods(http.MethodPut)
	api.HandleFunc("/plans", h.Users.ListPlans).Methods(http.MethodGet)

	api.HandleFunc("/projects", h.Projects.Create).Methods(http.MethodPost)
	api.HandleFunc("/projects", h.Projects.List).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectId}", h.Projects.Get).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectId}", h.Projects.Update).Methods(http.MethodPatch)
	api.HandleFunc("/projects/{projectId}", h.Projects.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/projects/{projectId}/members", h.Projects.ListMembers).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectId}/members", h.Projects.AddMember).Methods(http.MethodPost)
	api.HandleFunc("/projects/{projectId}/members/{userId}", h.Projects.RemoveMember).Methods(http.MethodDelete)

	api.HandleFunc("/tasks", h.Tasks.Create).Methods(http.MethodPost)
	api.HandleFunc("/tasks", h.Tasks.List).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskId}", h.Tasks.Get).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskId}", h.Tasks.Update).Methods(http.MethodPatch)
	api.HandleFunc("/tasks/{taskId}", h.Tasks.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/{taskId}/status", h.Tasks.SetStatus).Methods(http.MethodPatch)
	api.HandleFunc("/tasks/{taskId}/assignees", h.Tasks.Assign).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{taskId}/assignees/{userId}", h.Tasks.Unassign).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/{taskId}/comments", h.Comments.List).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskId}/comments", h.Comments.Add).Methods(http.MethodPost)
	api.HandleFunc("/comments/{commentId}", h.Comments.Update).Methods(http.MethodPatch)
	api.HandleFunc("/comments/{commentId}", h.Comments.Delete).Methods(http.MethodDelete)

	requests := api.PathPrefix("/status-change-requests").Subrouter().StrictSlash(true)
	requests.HandleFunc("/", h.Requests.Submit).Methods(http.MethodPost)
	requests.HandleFunc("/", h.Requests.List).Methods(http.MethodGet)
	requests.HandleFunc("/{id}/", h.Requests.Get).Methods(http.MethodGet)
	requests.HandleFunc("/{id}/", h.Requests.UpdateReason).Methods(http.MethodPatch)
	requests.HandleFunc("/{id}/action/", h.Requests.Decide).Methods(http.MethodPost)

	api.HandleFunc("/notifications", h.Notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/preferences", h.Notifications.GetPreferences).Methods(http.MethodGet)
	api.HandleFunc("/notifications/preferences", h.Notifications.SetPreferences).Methods(http.MethodPut)
	api.HandleFunc("/notifications/{id}/read", h.Notifications.MarkRead).Methods(http.MethodPut)
	api.HandleFunc("/notifications/{id}", h.Notifications.Delete).Methods(http.MethodDelete)

	return r
}

func (h Handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			writeMessage(w, http.StatusServiceUnavailable, "Storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
