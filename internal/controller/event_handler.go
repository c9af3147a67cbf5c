package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dkotenko/slotswapper/internal/model"
)

type eventService interface {
	Create(ctx context.Context, userID int64, title string, startTime, endTime time.Time) (*model.Event, error)
	Mine(ctx context.Context, userID int64) ([]*model.Event, error)
	UpdateStatus(ctx context.Context, userID, eventID int64, status model.EventStatus) error
	Update(ctx context.Context, userID, eventID int64, title string, startTime, endTime time.Time) error
	Delete(ctx context.Context, userID, eventID int64) error
}

type EventHandler struct {
	events   eventService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewEventHandler(events eventService, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		events:   events,
		validate: validator.New(),
		logger:   logger,
	}
}

type eventRequest struct {
	Title     string    `json:"title" validate:"required"`
	StartTime time.Time `json:"startTime" validate:"required"`
	EndTime   time.Time `json:"endTime" validate:"required"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func eventIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "eventID"), 10, 64)
	return id, err == nil && id > 0
}

// Create обрабатывает POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized."})
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body."})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Please provide title, startTime, and endTime."})
		return
	}

	event, err := h.events.Create(r.Context(), identity.UserID, req.Title, req.StartTime, req.EndTime)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "Event created successfully!",
		"event":   event,
	})
}

// Mine обрабатывает GET /api/events/my-events
func (h *EventHandler) Mine(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized."})
		return
	}

	events, err := h.events.Mine(r.Context(), identity.UserID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if events == nil {
		events = []*model.Event{}
	}

	respondJSON(w, http.StatusOK, events)
}

// UpdateStatus обрабатывает PATCH /api/events/{eventID}/status
func (h *EventHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized."})
		return
	}

	eventID, ok := eventIDParam(r)
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid event id."})
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body."})
		return
	}

	err := h.events.UpdateStatus(r.Context(), identity.UserID, eventID, model.EventStatus(req.Status))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message":   "Event status updated successfully.",
		"newStatus": req.Status,
	})
}

// Update обрабатывает PUT /api/events/{eventID}
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized."})
		return
	}

	eventID, ok := eventIDParam(r)
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid event id."})
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body."})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "All fields are required."})
		return
	}

	err := h.events.Update(r.Context(), identity.UserID, eventID, req.Title, req.StartTime, req.EndTime)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"message": "Event updated successfully."})
}

// Delete обрабатывает DELETE /api/events/{eventID}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized."})
		return
	}

	eventID, ok := eventIDParam(r)
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid event id."})
		return
	}

	if err := h.events.Delete(r.Context(), identity.UserID, eventID); err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"message": "Event deleted successfully."})
}
