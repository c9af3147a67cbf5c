package model

import "time"

type EventStatus string

const (
	EventStatusBusy EventStatus = "BUSY"
	// EventStatusSwappable слот выставлен на обмен и виден другим пользователям
	EventStatusSwappable EventStatus = "SWAPPABLE"
	// EventStatusSwapPending слот заблокирован активным предложением обмена.
	// Статус одновременно и отображается в UI, и работает как блокировка:
	// пока слот SWAP_PENDING, его нельзя редактировать, удалять или
	// предлагать в другом обмене.
	EventStatusSwapPending EventStatus = "SWAP_PENDING"
)

type Event struct {
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	StartTime time.Time   `json:"startTime"`
	EndTime   time.Time   `json:"endTime"`
	Status    EventStatus `json:"status"`
	UserID    int64       `json:"userId"`
	CreatedAt time.Time   `json:"-"`
}

// IsToggleableStatus проверяет что статус допустим для ручного переключения владельцем
func IsToggleableStatus(status EventStatus) bool {
	return status == EventStatusBusy || status == EventStatusSwappable
}

// Locked проверяет заблокирован ли слот активным предложением обмена
func (e *Event) Locked() bool {
	return e.Status == EventStatusSwapPending
}

// OwnedBy проверяет принадлежит ли слот пользователю
func (e *Event) OwnedBy(userID int64) bool {
	return e.UserID == userID
}
