package service

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dkotenko/slotswapper/internal/apperr"
	"github.com/dkotenko/slotswapper/internal/model"
	"github.com/dkotenko/slotswapper/internal/notify"
	"github.com/dkotenko/slotswapper/internal/repository"
	"github.com/dkotenko/slotswapper/internal/repository/base"
)

// Notifier узкий интерфейс доставки push-событий подключённым клиентам.
// Доставка best-effort: реализация не возвращает ошибок и не блокируется.
type Notifier interface {
	SendToUser(userID int64, event notify.Event)
	BroadcastExcept(event notify.Event, exceptUserID int64)
}

// SwapService движок переговоров об обмене слотами.
//
// Каждая операция propose/respond/dismiss выполняется в одной транзакции:
// сначала все проверки по заблокированным FOR UPDATE строкам, потом записи.
// Любая ошибка предусловия гарантированно не оставляет следов в базе.
// Уведомления отправляются строго после успешного коммита.
type SwapService struct {
	pool      *pgxpool.Pool
	eventRepo *repository.EventRepository
	swapRepo  *repository.SwapRequestRepository
	notifier  Notifier
	logger    *zap.Logger
}

func NewSwapService(
	pool *pgxpool.Pool,
	eventRepo *repository.EventRepository,
	swapRepo *repository.SwapRequestRepository,
	notifier Notifier,
	logger *zap.Logger,
) *SwapService {
	return &SwapService{
		pool:      pool,
		eventRepo: eventRepo,
		swapRepo:  swapRepo,
		notifier:  notifier,
		logger:    logger,
	}
}

// Marketplace возвращает все чужие слоты со статусом SWAPPABLE
func (s *SwapService) Marketplace(ctx context.Context, userID int64) ([]*model.MarketplaceSlot, error) {
	slots, err := s.eventRepo.GetSwappableExcept(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("get swappable slots", err)
	}
	return slots, nil
}

// lockSlotPair блокирует оба слота FOR UPDATE в порядке возрастания id,
// чтобы встречные предложения на одну пару слотов не взаимоблокировались.
func (s *SwapService) lockSlotPair(ctx context.Context, q base.Querier, firstID, secondID int64) (*model.Event, *model.Event, error) {
	a, b := firstID, secondID
	if b < a {
		a, b = b, a
	}

	lockedA, err := s.eventRepo.GetByIDForUpdate(ctx, q, a)
	if err != nil {
		return nil, nil, err
	}
	var lockedB *model.Event
	if a == b {
		lockedB = lockedA
	} else {
		lockedB, err = s.eventRepo.GetByIDForUpdate(ctx, q, b)
		if err != nil {
			return nil, nil, err
		}
	}

	if a == firstID {
		return lockedA, lockedB, nil
	}
	return lockedB, lockedA, nil
}

// Propose создаёт предложение обмена: слот инициатора за чужой слот.
// Оба слота сразу переводятся в SWAP_PENDING — это и блокировка от
// параллельных предложений, и защита от редактирования во время переговоров.
func (s *SwapService) Propose(ctx context.Context, requesterID, offeredSlotID, targetSlotID int64) (*model.SwapRequest, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internal("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	offered, target, err := s.lockSlotPair(ctx, tx, offeredSlotID, targetSlotID)
	if err != nil {
		return nil, apperr.Internal("lock slots", err)
	}

	// Проверки в фиксированном порядке, каждая — отдельная ошибка
	if offered == nil || target == nil {
		return nil, apperr.NotFound("One or both slots not found.")
	}
	if !offered.OwnedBy(requesterID) {
		return nil, apperr.Forbidden("You do not own the slot you are offering.")
	}
	if target.OwnedBy(requesterID) {
		return nil, apperr.Validation("You cannot swap with yourself.")
	}
	if offered.Status != model.EventStatusSwappable || target.Status != model.EventStatusSwappable {
		return nil, apperr.Validation("One or both slots are not currently swappable.")
	}

	sr := &model.SwapRequest{
		RequesterSlotID: offered.ID,
		ReceiverSlotID:  target.ID,
		Status:          model.SwapRequestStatusPending,
	}

	if err := s.swapRepo.Create(ctx, tx, sr); err != nil {
		return nil, apperr.Internal("create swap request", err)
	}
	if err := s.eventRepo.UpdateStatusPair(ctx, tx, offered.ID, target.ID, model.EventStatusSwapPending); err != nil {
		return nil, apperr.Internal("lock slots pending", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internal("commit transaction", err)
	}

	// Уведомления строго после коммита
	s.notifier.SendToUser(target.UserID, notify.NewRequest())
	s.notifier.BroadcastExcept(notify.MarketplaceUpdate(), requesterID)

	s.logger.Info("Swap proposed",
		zap.Int64("swap_request_id", sr.ID),
		zap.Int64("requester_id", requesterID),
		zap.Int64("offered_slot_id", offered.ID),
		zap.Int64("target_slot_id", target.ID),
	)

	return sr, nil
}

// Respond принимает или отклоняет предложение. Отвечать может только
// владелец целевого слота, и только пока предложение PENDING.
//
// PENDING-проверка по заблокированной строке предложения — единственная
// точка сериализации: из двух конкурирующих ответов ровно один проходит,
// второй получает ошибку конфликта.
func (s *SwapService) Respond(ctx context.Context, responderID, swapRequestID int64, accept bool) (model.SwapRequestStatus, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", apperr.Internal("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	sr, err := s.swapRepo.GetByIDForUpdate(ctx, tx, swapRequestID)
	if err != nil {
		return "", apperr.Internal("get swap request", err)
	}
	if sr == nil {
		return "", apperr.NotFound("Swap request not found.")
	}
	if sr.Status != model.SwapRequestStatusPending {
		return "", apperr.Conflict("Request already handled.")
	}

	requesterSlot, receiverSlot, err := s.lockSlotPair(ctx, tx, sr.RequesterSlotID, sr.ReceiverSlotID)
	if err != nil {
		return "", apperr.Internal("lock slots", err)
	}
	if requesterSlot == nil || receiverSlot == nil {
		return "", apperr.NotFound("Event no longer exists.")
	}
	if !receiverSlot.OwnedBy(responderID) {
		return "", apperr.Forbidden("Forbidden.")
	}

	var resolution model.SwapRequestStatus
	if accept {
		resolution = model.SwapRequestStatusAccepted

		if err := s.swapRepo.UpdateStatus(ctx, tx, sr.ID, resolution); err != nil {
			return "", apperr.Internal("update swap request status", err)
		}
		// Обмен владельцами — единственное место в системе, где слот меняет хозяина
		if err := s.eventRepo.TransferOwner(ctx, tx, receiverSlot.ID, requesterSlot.UserID); err != nil {
			return "", apperr.Internal("transfer receiver slot", err)
		}
		if err := s.eventRepo.TransferOwner(ctx, tx, requesterSlot.ID, receiverSlot.UserID); err != nil {
			return "", apperr.Internal("transfer requester slot", err)
		}
		if err := s.eventRepo.UpdateStatusPair(ctx, tx, requesterSlot.ID, receiverSlot.ID, model.EventStatusBusy); err != nil {
			return "", apperr.Internal("set slots busy", err)
		}
	} else {
		resolution = model.SwapRequestStatusRejected

		if err := s.swapRepo.UpdateStatus(ctx, tx, sr.ID, resolution); err != nil {
			return "", apperr.Internal("update swap request status", err)
		}
		// Возвращаем оба слота на биржу
		if err := s.eventRepo.UpdateStatusPair(ctx, tx, requesterSlot.ID, receiverSlot.ID, model.EventStatusSwappable); err != nil {
			return "", apperr.Internal("set slots swappable", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", apperr.Internal("commit transaction", err)
	}

	// requesterSlot.UserID прочитан до обмена владельцами,
	// поэтому уведомление уходит именно инициатору предложения
	s.notifier.SendToUser(requesterSlot.UserID, notify.RequestResponse(string(resolution)))
	s.notifier.BroadcastExcept(notify.MarketplaceUpdate(), responderID)

	s.logger.Info("Swap resolved",
		zap.Int64("swap_request_id", sr.ID),
		zap.Int64("responder_id", responderID),
		zap.String("resolution", string(resolution)),
	)

	return resolution, nil
}

// Incoming возвращает входящие PENDING предложения пользователя
func (s *SwapService) Incoming(ctx context.Context, userID int64) ([]*model.IncomingSwapRequest, error) {
	requests, err := s.swapRepo.GetIncoming(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("get incoming swap requests", err)
	}
	return requests, nil
}

// Outgoing возвращает все исходящие предложения пользователя в любом статусе
func (s *SwapService) Outgoing(ctx context.Context, userID int64) ([]*model.OutgoingSwapRequest, error) {
	requests, err := s.swapRepo.GetOutgoing(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("get outgoing swap requests", err)
	}
	return requests, nil
}

// Dismiss удаляет обработанное предложение из списка инициатора.
// PENDING предложение удалить нельзя: это оставило бы оба слота
// в SWAP_PENDING без ссылающегося на них предложения.
func (s *SwapService) Dismiss(ctx context.Context, userID, swapRequestID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Internal("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	sr, err := s.swapRepo.GetByIDForUpdate(ctx, tx, swapRequestID)
	if err != nil {
		return apperr.Internal("get swap request", err)
	}
	if sr == nil {
		return apperr.NotFound("Not found.")
	}
	if !sr.Resolved() {
		return apperr.Conflict("Cannot dismiss a pending swap request.")
	}

	requesterSlot, err := s.eventRepo.GetByIDForUpdate(ctx, tx, sr.RequesterSlotID)
	if err != nil {
		return apperr.Internal("get requester slot", err)
	}
	if requesterSlot == nil {
		return apperr.NotFound("Event no longer exists.")
	}
	if !requesterSlot.OwnedBy(userID) {
		return apperr.Forbidden("Forbidden.")
	}

	if err := s.swapRepo.Delete(ctx, tx, sr.ID); err != nil {
		return apperr.Internal("delete swap request", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internal("commit transaction", err)
	}

	s.logger.Info("Swap request dismissed",
		zap.Int64("swap_request_id", swapRequestID),
		zap.Int64("user_id", userID),
	)

	return nil
}
