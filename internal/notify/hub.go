package notify

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub реестр активных соединений: на пользователя не больше одного соединения.
// Доставка строго best-effort: недоступность клиента никогда не влияет
// на результат операции, ошибки отправки только логируются.
type Hub struct {
	mu          sync.RWMutex
	connections map[int64]*connection
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[int64]*connection),
		logger:      logger,
	}
}

// Serve регистрирует соединение пользователя и обслуживает его до закрытия.
// Новое соединение вытесняет предыдущее соединение того же пользователя.
func (h *Hub) Serve(userID int64, ws *websocket.Conn) {
	conn := newConnection(uuid.NewString(), ws)

	h.mu.Lock()
	if old, ok := h.connections[userID]; ok {
		old.close()
	}
	h.connections[userID] = conn
	h.mu.Unlock()

	h.logger.Info("Client connected",
		zap.Int64("user_id", userID),
		zap.String("connection_id", conn.id),
	)

	go conn.writePump()
	conn.readPump() // блокируется до закрытия соединения

	h.mu.Lock()
	// Удаляем только если соединение не было вытеснено более новым
	if current, ok := h.connections[userID]; ok && current.id == conn.id {
		delete(h.connections, userID)
	}
	h.mu.Unlock()

	h.logger.Info("Client disconnected",
		zap.Int64("user_id", userID),
		zap.String("connection_id", conn.id),
	)
}

// SendToUser отправляет событие одному пользователю, если он подключён
func (h *Hub) SendToUser(userID int64, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("Marshal notification failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	conn, ok := h.connections[userID]
	h.mu.RUnlock()

	if !ok {
		return
	}

	if !conn.send(payload) {
		h.logger.Warn("Notification dropped, client too slow",
			zap.Int64("user_id", userID),
			zap.String("type", event.Type),
		)
	}
}

// BroadcastExcept отправляет событие всем подключённым, кроме одного пользователя
func (h *Hub) BroadcastExcept(event Event, exceptUserID int64) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("Marshal notification failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for userID, conn := range h.connections {
		if userID == exceptUserID {
			continue
		}
		if !conn.send(payload) {
			h.logger.Warn("Broadcast dropped, client too slow",
				zap.Int64("user_id", userID),
				zap.String("type", event.Type),
			)
		}
	}
}

// ConnectedCount возвращает число активных соединений
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
