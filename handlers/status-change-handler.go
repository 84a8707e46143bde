package handlers

import (
	"net/http"
	"strconv"

	"github.com/NAHIAN-19/project-planner/services"
	"github.com/NAHIAN-19/project-planner/validation"
	"github.com/gorilla/mux"
)

type StatusChangeHandler struct {
	service *services.StatusChangeService
}

func NewStatusChangeHandler(service *services.StatusChangeService) *StatusChangeHandler {
	return &StatusChangeHandler{service: service}
}

func (h *StatusChangeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Task   string `json:"task"`
		Reason string `json:"reason"`
	}
	if err := validation.Decode(r.Body, validation.CreateRequest, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.service.Submit(r.Context(), actor(r), body.Task, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *StatusChangeHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid page.")
		return
	}
	pageSize, err := intParam(q.Get("page_size"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid page size.")
		return
	}
	result, err := h.service.List(r.Context(), actor(r), services.RequestQuery{
		TaskID:    q.Get("task_id"),
		ProjectID: q.Get("project_id"),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *StatusChangeHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Get(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *StatusChangeHandler) UpdateReason(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := validation.Decode(r.Body, validation.UpdateRequest, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.service.UpdateReason(r.Context(), actor(r), mux.Vars(r)["id"], body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Decide handles the owner's accept or reject.
func (h *StatusChangeHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
	}
	if err := validation.Decode(r.Body, validation.DecideRequest, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.service.Decide(r.Context(), actor(r), mux.Vars(r)["id"], body.Action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// intParam parses an optional integer query parameter; empty means zero.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
