package handlers

import (
	"net/http"

	"github.com/NAHIAN-19/project-planner/services"
	"github.com/NAHIAN-19/project-planner/validation"
	"github.com/gorilla/mux"
)

type CommentHandler struct {
	service *services.CommentService
}

func NewCommentHandler(service *services.CommentService) *CommentHandler {
	return &CommentHandler{service: service}
}

func (h *CommentHandler) Add(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content  string  `json:"content"`
		ParentID *string `json:"parentId"`
	}
	if err := validation.Decode(r.Body, validation.CreateComment, &body); err != nil {
		writeError(w, r, err)
		return
	}
	comment, err := h.service.Add(r.Context(), actor(r), mux.Vars(r)["taskId"], body.Content, body.ParentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.List(r.Context(), actor(r), mux.Vars(r)["taskId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := validation.Decode(r.Body, validation.UpdateComment, &body); err != nil {
		writeError(w, r, err)
		return
	}
	comment, err := h.service.Update(r.Context(), actor(r), mux.Vars(r)["commentId"], body.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), actor(r), mux.Vars(r)["commentId"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
