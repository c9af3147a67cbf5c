package controller

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dkotenko/slotswapper/internal/notify"
)

// WSHandler апгрейдит HTTP-соединение до websocket и передаёт его в Hub.
// Аутентификация через query-параметр token: браузерный WebSocket API
// не умеет выставлять заголовок Authorization.
type WSHandler struct {
	hub      *notify.Hub
	tokens   tokenParser
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(hub *notify.Hub, tokens tokenParser, allowedOrigins []string, logger *zap.Logger) *WSHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return &WSHandler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		logger: logger,
	}
}

// Connect обрабатывает GET /ws?token=<jwt>
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "No token, authorization denied."})
		return
	}

	identity, err := h.tokens.ParseToken(token)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Token is not valid."})
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам пишет HTTP-ошибку клиенту
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.hub.Serve(identity.UserID, ws)
}
