package handlers

import (
	"net/http"

	"github.com/NAHIAN-19/project-planner/middleware"
	"github.com/NAHIAN-19/project-planner/services"
	"github.com/NAHIAN-19/project-planner/validation"
)

type UserHandler struct {
	service *services.UserService
}

func NewUserHandler(service *services.UserService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := validation.Decode(r.Body, validation.CreateUser, &body); err != nil {
		writeError(w, r, err)
		return
	}
	id, _ := middleware.IdentityFromContext(r.Context())
	user, err := h.service.Register(r.Context(), id.UserID, body.Username, body.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Get(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Plan string `json:"plan"`
	}
	if err := validation.Decode(r.Body, validation.ChangePlan, &body); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.service.ChangePlan(r.Context(), actor(r), body.Plan)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Plans())
}
