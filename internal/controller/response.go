package controller

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/dkotenko/slotswapper/internal/apperr"
)

// errorBody тело ошибки: короткая человекочитаемая причина, без деталей
type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondError переводит ошибку приложения в HTTP-ответ.
// Конфликты логируются отдельно от валидации: это штатный исход гонки,
// а не ошибка клиента, и их полезно видеть в логах как таковые.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	appErr := apperr.From(err)

	switch appErr.Kind {
	case apperr.KindInternal:
		logger.Error("Request failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "Server error."})
		return
	case apperr.KindConflict:
		logger.Warn("Concurrent resolution conflict", zap.String("reason", appErr.Message))
	}

	respondJSON(w, appErr.HTTPStatus(), errorBody{Error: appErr.Message})
}
