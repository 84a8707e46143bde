package handlers

import (
	"net/http"

	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/services"
	"github.com/NAHIAN-19/project-planner/validation"
	"github.com/gorilla/mux"
)

type TaskHandler struct {
	service *services.TaskService
}

func NewTaskHandler(service *services.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.TaskInput
	if err := validation.Decode(r.Body, validation.CreateTask, &in); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := h.service.Create(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := h.service.List(r.Context(), actor(r), services.TaskQuery{
		ProjectID:  q.Get("project_id"),
		Status:     models.TaskStatus(q.Get("status")),
		AssigneeID: q.Get("assignee"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.Get(r.Context(), actor(r), mux.Vars(r)["taskId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch services.TaskPatch
	if err := validation.Decode(r.Body, validation.UpdateTask, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := h.service.Update(r.Context(), actor(r), mux.Vars(r)["taskId"], patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), actor(r), mux.Vars(r)["taskId"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetStatus is the direct status path for tasks that do not need approval.
func (h *TaskHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.TaskStatus `json:"status"`
	}
	if err := validation.Decode(r.Body, validation.SetStatus, &body); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := h.service.SetStatusDirectly(r.Context(), actor(r), mux.Vars(r)["taskId"], body.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := validation.Decode(r.Body, validation.UserRef, &body); err != nil {
		writeError(w, r, err)
		return
	}
	assignment, err := h.service.Assign(r.Context(), actor(r), mux.Vars(r)["taskId"], body.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}

func (h *TaskHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.Unassign(r.Context(), actor(r), vars["taskId"], vars["userId"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
