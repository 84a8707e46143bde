package handlers

import (
	"net/http"

	"github.com/NAHIAN-19/project-planner/services"
	"github.com/NAHIAN-19/project-planner/validation"
	"github.com/gorilla/mux"
)

type ProjectHandler struct {
	service *services.ProjectService
}

func NewProjectHandler(service *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{service: service}
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.ProjectInput
	if err := validation.Decode(r.Body, validation.CreateProject, &in); err != nil {
		writeError(w, r, err)
		return
	}
	project, err := h.service.Create(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.List(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	project, err := h.service.Get(r.Context(), actor(r), mux.Vars(r)["projectId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch services.ProjectPatch
	if err := validation.Decode(r.Body, validation.UpdateProject, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	project, err := h.service.Update(r.Context(), actor(r), mux.Vars(r)["projectId"], patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), actor(r), mux.Vars(r)["projectId"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context(), actor(r), mux.Vars(r)["projectId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := validation.Decode(r.Body, validation.UserRef, &body); err != nil {
		writeError(w, r, err)
		return
	}
	member, err := h.service.AddMember(r.Context(), actor(r), mux.Vars(r)["projectId"], body.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.RemoveMember(r.Context(), actor(r), vars["projectId"], vars["userId"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
