package handlers

import (
	"net/http"
	"strconv"

	"github.com/NAHIAN-19/project-planner/logging"
	"github.com/NAHIAN-19/project-planner/models"
	"github.com/NAHIAN-19/project-planner/realtime"
	"github.com/NAHIAN-19/project-planner/services"
	"github.com/NAHIAN-19/project-planner/validation"
	"github.com/gorilla/mux"
)

type NotificationHandler struct {
	service *services.NotificationService
	hub     *realtime.Hub
}

func NewNotificationHandler(service *services.NotificationService, hub *realtime.Hub) *NotificationHandler {
	return &NotificationHandler{service: service, hub: hub}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	unreadOnly := false
	if v := r.URL.Query().Get("unread"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid unread flag.")
			return
		}
		unreadOnly = parsed
	}
	notifications, err := h.service.List(r.Context(), actor(r), unreadOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkRead(r.Context(), actor(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), actor(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.service.Preferences(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *NotificationHandler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs models.NotificationPreferences
	if err := validation.Decode(r.Body, validation.Preferences, &prefs); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.service.SetPreferences(r.Context(), actor(r), prefs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Stream upgrades to a websocket that receives the caller's notifications as they are stored.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := actor(r)
	if err := h.hub.Serve(w, r, userID); err != nil {
		logging.Logger.Debugf("Event ID: WS_STREAM_REJECTED, Description: Stream for user %s not opened: %v", userID, err)
	}
}
