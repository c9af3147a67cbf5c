package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dkotenko/slotswapper/internal/model"
)

// swapEngine операции движка переговоров, доступные по HTTP
type swapEngine interface {
	Marketplace(ctx context.Context, userID int64) ([]*model.MarketplaceSlot, error)
	Propose(ctx context.Context, requesterID, offeredSlotID, targetSlotID int64) (*model.SwapRequest, error)
	Respond(ctx context.Context, responderID, swapRequestID int64, accept bool) (model.SwapRequestStatus, error)
	Incoming(ctx context.Context, userID int64) ([]*model.IncomingSwapRequest, error)
	Outgoing(ctx context.Context, userID int64) ([]*model.OutgoingSwapRequest, error)
	Dismiss(ctx context.Context, userID, swapRequestID int64) error
}

type SwapHandler struct {
	swaps  swapEngine
	logger *zap.Logger
}

func NewSwapHandler(swaps swapEngine, logger *zap.Logger) *SwapHandler {
	return &SwapHandler{
		swaps:  swaps,
		logger: logger,
	}
}

type swapProposalRequest struct {
	OfferedSlotID int64 `json:"offeredSlotId"`
	TargetSlotID  int64 `json:"targetSlotId"`
}

type swapResponseRequest struct {
	// Указатель, чтобы отличать отсутствующее поле от false
	Acceptance *bool `json:"acceptance"`
}

func swapRequestIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "swapRequestID"), 10, 64)
	return id, err == nil && id > 0
}

// Marketplace обрабатывает GET /api/swap/swappable-slots
func (h *SwapHandler) Marketplace(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized."})
		return
	}

	slots, err := h.swaps.Marketplace(r.Context(), identity.UserID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if slots == nil {
		slots = []*model.MarketplaceSlot{}
	}

	respondJSON(w, http.StatusOK, slots)
}

// Propose обрабатывает POST /api/swap/request
func (h *SwapHandler) Propose(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized."})
		return
	}

	var req swapProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body."})
		return
	}
	if req.OfferedSlotID == 0 || req.TargetSlotID == 0 {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Both slot IDs are required."})
		return
	}

	sr, err := h.swaps.Propose(r.Context(), identity.UserID, req.OfferedSlotID, req.TargetSlotID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message":       "Swap request submitted successfully!",
		"swapRequestId": sr.ID,
		"status":        sr.Status,
	})
}

// Respond обрабатывает POST /api/swap/response/{swapRequestID}
func (h *SwapHandler) Respond(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized."})
		return
	}

	swapRequestID, ok := swapRequestIDParam(r)
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid swap request id."})
		return
	}

	var req swapResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body."})
		return
	}
	if req.Acceptance == nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Acceptance is required."})
		return
	}

	resolution, err := h.swaps.Respond(r.Context(), identity.UserID, swapRequestID, *req.Acceptance)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	message := "Swap request rejected."
	if resolution == model.SwapRequestStatusAccepted {
		message = "Swap accepted! Your calendars have been updated."
	}

	respondJSON(w, http.StatusOK, map[string]any{"message": message})
}

// Incoming обрабатывает GET /api/swap/requests/incoming
func (h *SwapHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized."})
		return
	}

	requests, err := h.swaps.Incoming(r.Context(), identity.UserID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if requests == nil {
		requests = []*model.IncomingSwapRequest{}
	}

	respondJSON(w, http.StatusOK, requests)
}

// Outgoing обрабатывает GET /api/swap/requests/outgoing
func (h *SwapHandler) Outgoing(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized."})
		return
	}

	requests, err := h.swaps.Outgoing(r.Context(), identity.UserID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if requests == nil {
		requests = []*model.OutgoingSwapRequest{}
	}

	respondJSON(w, http.StatusOK, requests)
}

// Dismiss обрабатывает DELETE /api/swap/request/{swapRequestID}
func (h *SwapHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized."})
		return
	}

	swapRequestID, ok := swapRequestIDParam(r)
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid swap request id."})
		return
	}

	if err := h.swaps.Dismiss(r.Context(), identity.UserID, swapRequestID); err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"message": "Request dismissed."})
}
