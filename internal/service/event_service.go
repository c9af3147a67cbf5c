package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dkotenko/slotswapper/internal/apperr"
	"github.com/dkotenko/slotswapper/internal/model"
	"github.com/dkotenko/slotswapper/internal/repository"
)

// EventService операции владельца над собственными слотами.
// Все мутации выполняются в транзакции с блокировкой строки, чтобы проверка
// "слот не заблокирован обменом" не могла разойтись с конкурирующим propose.
type EventService struct {
	pool      *pgxpool.Pool
	eventRepo *repository.EventRepository
	logger    *zap.Logger
}

func NewEventService(pool *pgxpool.Pool, eventRepo *repository.EventRepository, logger *zap.Logger) *EventService {
	return &EventService{
		pool:      pool,
		eventRepo: eventRepo,
		logger:    logger,
	}
}

// Create создаёт новый слот со статусом BUSY
func (s *EventService) Create(ctx context.Context, userID int64, title string, startTime, endTime time.Time) (*model.Event, error) {
	if !startTime.Before(endTime) {
		return nil, apperr.Validation("startTime must be before endTime.")
	}

	event := &model.Event{
		Title:     title,
		StartTime: startTime,
		EndTime:   endTime,
		Status:    model.EventStatusBusy,
		UserID:    userID,
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, apperr.Internal("create event", err)
	}

	s.logger.Info("Event created",
		zap.Int64("event_id", event.ID),
		zap.Int64("user_id", userID),
	)

	return event, nil
}

// Mine возвращает все слоты пользователя
func (s *EventService) Mine(ctx context.Context, userID int64) ([]*model.Event, error) {
	events, err := s.eventRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("get events", err)
	}
	return events, nil
}

// UpdateStatus переключает слот между BUSY и SWAPPABLE.
// SWAP_PENDING недоступен для ручной установки и для ручного снятия:
// им управляет только движок обмена.
func (s *EventService) UpdateStatus(ctx context.Context, userID, eventID int64, status model.EventStatus) error {
	if !model.IsToggleableStatus(status) {
		return apperr.Validation("Invalid status.")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Internal("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	event, err := s.eventRepo.GetByIDForUpdate(ctx, tx, eventID)
	if err != nil {
		return apperr.Internal("get event", err)
	}
	if event == nil {
		return apperr.NotFound("Event not found.")
	}
	if !event.OwnedBy(userID) {
		return apperr.Forbidden("Forbidden. You do not own this event.")
	}
	if event.Locked() {
		return apperr.Validation("Cannot change status of an event with a pending swap.")
	}

	if err := s.eventRepo.UpdateStatus(ctx, tx, eventID, status); err != nil {
		return apperr.Internal("update event status", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internal("commit transaction", err)
	}

	s.logger.Info("Event status updated",
		zap.Int64("event_id", eventID),
		zap.String("status", string(status)),
	)

	return nil
}

// Update обновляет название и время слота
func (s *EventService) Update(ctx context.Context, userID, eventID int64, title string, startTime, endTime time.Time) error {
	if !startTime.Before(endTime) {
		return apperr.Validation("startTime must be before endTime.")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Internal("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	event, err := s.eventRepo.GetByIDForUpdate(ctx, tx, eventID)
	if err != nil {
		return apperr.Internal("get event", err)
	}
	if event == nil {
		return apperr.NotFound("Event not found.")
	}
	if !event.OwnedBy(userID) {
		return apperr.Forbidden("Forbidden.")
	}
	if event.Locked() {
		return apperr.Validation("Cannot edit pending event.")
	}

	event.Title = title
	event.StartTime = startTime
	event.EndTime = endTime

	if err := s.eventRepo.Update(ctx, tx, event); err != nil {
		return apperr.Internal("update event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internal("commit transaction", err)
	}

	s.logger.Info("Event updated", zap.Int64("event_id", eventID))

	return nil
}

// Delete удаляет слот
func (s *EventService) Delete(ctx context.Context, userID, eventID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Internal("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	event, err := s.eventRepo.GetByIDForUpdate(ctx, tx, eventID)
	if err != nil {
		return apperr.Internal("get event", err)
	}
	if event == nil {
		return apperr.NotFound("Event not found.")
	}
	if !event.OwnedBy(userID) {
		return apperr.Forbidden("Forbidden.")
	}
	if event.Locked() {
		return apperr.Validation("Cannot delete pending event.")
	}

	if err := s.eventRepo.Delete(ctx, tx, eventID); err != nil {
		return apperr.Internal("delete event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internal("commit transaction", err)
	}

	s.logger.Info("Event deleted", zap.Int64("event_id", eventID))

	return nil
}
