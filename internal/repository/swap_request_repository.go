package repository

import (
	"context"
	"fmt"

	"github.com/dkotenko/slotswapper/internal/model"
	"github.com/dkotenko/slotswapper/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SwapRequestRepository struct {
	pool *pgxpool.Pool
}

func NewSwapRequestRepository(pool *pgxpool.Pool) *SwapRequestRepository {
	return &SwapRequestRepository{pool: pool}
}

// Create создаёт новое предложение обмена
func (r *SwapRequestRepository) Create(ctx context.Context, q base.Querier, sr *model.SwapRequest) error {
	query := `
		INSERT INTO swap_requests (requester_slot_id, receiver_slot_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := q.QueryRow(
		ctx, query,
		sr.RequesterSlotID,
		sr.ReceiverSlotID,
		sr.Status,
	).Scan(&sr.ID, &sr.CreatedAt)

	if err != nil {
		return fmt.Errorf("create swap request: %w", err)
	}

	return nil
}

const swapRequestColumns = "id, requester_slot_id, receiver_slot_id, status, created_at"

func scanSwapRequest(row pgx.Row) (*model.SwapRequest, error) {
	var sr model.SwapRequest
	err := row.Scan(
		&sr.ID,
		&sr.RequesterSlotID,
		&sr.ReceiverSlotID,
		&sr.Status,
		&sr.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

// GetByID получает предложение по ID
func (r *SwapRequestRepository) GetByID(ctx context.Context, id int64) (*model.SwapRequest, error) {
	query := `SELECT ` + swapRequestColumns + ` FROM swap_requests WHERE id = $1`

	sr, err := scanSwapRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get swap request by id: %w", err)
	}

	return sr, nil
}

// GetByIDForUpdate получает предложение с блокировкой строки до конца транзакции.
// Блокировка строки предложения — точка сериализации конкурирующих ответов:
// из двух одновременных respond ровно один увидит статус PENDING.
func (r *SwapRequestRepository) GetByIDForUpdate(ctx context.Context, q base.Querier, id int64) (*model.SwapRequest, error) {
	query := `SELECT ` + swapRequestColumns + ` FROM swap_requests WHERE id = $1 FOR UPDATE`

	sr, err := scanSwapRequest(q.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get swap request for update: %w", err)
	}

	return sr, nil
}

// UpdateStatus переводит предложение в терминальный статус
func (r *SwapRequestRepository) UpdateStatus(ctx context.Context, q base.Querier, id int64, status model.SwapRequestStatus) error {
	query := `UPDATE swap_requests SET status = $1 WHERE id = $2`

	_, err := q.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update swap request status: %w", err)
	}

	return nil
}

// Delete удаляет предложение
func (r *SwapRequestRepository) Delete(ctx context.Context, q base.Querier, id int64) error {
	query := `DELETE FROM swap_requests WHERE id = $1`

	_, err := q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete swap request: %w", err)
	}

	return nil
}

// GetIncoming получает все PENDING предложения, нацеленные на слоты пользователя
func (r *SwapRequestRepository) GetIncoming(ctx context.Context, userID int64) ([]*model.IncomingSwapRequest, error) {
	query := `
		SELECT sr.id, req.id, req.title, req.start_time,
		       CASE WHEN ru.name <> '' THEN ru.name ELSE split_part(ru.email, '@', 1) END AS requester_name
		FROM swap_requests sr
		JOIN events rec ON rec.id = sr.receiver_slot_id
		JOIN events req ON req.id = sr.requester_slot_id
		JOIN users ru ON ru.id = req.user_id
		WHERE rec.user_id = $1 AND sr.status = $2
		ORDER BY sr.created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, model.SwapRequestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("get incoming swap requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.IncomingSwapRequest
	for rows.Next() {
		var req model.IncomingSwapRequest
		err := rows.Scan(
			&req.SwapRequestID,
			&req.RequesterSlotID,
			&req.RequesterSlotTitle,
			&req.RequesterSlotStartTime,
			&req.RequesterName,
		)
		if err != nil {
			return nil, fmt.Errorf("scan incoming swap request: %w", err)
		}
		requests = append(requests, &req)
	}

	return requests, rows.Err()
}

// GetOutgoing получает все предложения пользователя в любом статусе
func (r *SwapRequestRepository) GetOutgoing(ctx context.Context, userID int64) ([]*model.OutgoingSwapRequest, error) {
	query := `
		SELECT sr.id, sr.status, rec.id, rec.title, rec.start_time,
		       CASE WHEN ru.name <> '' THEN ru.name ELSE split_part(ru.email, '@', 1) END AS receiver_name
		FROM swap_requests sr
		JOIN events req ON req.id = sr.requester_slot_id
		JOIN events rec ON rec.id = sr.receiver_slot_id
		JOIN users ru ON ru.id = rec.user_id
		WHERE req.user_id = $1
		ORDER BY sr.created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get outgoing swap requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.OutgoingSwapRequest
	for rows.Next() {
		var req model.OutgoingSwapRequest
		err := rows.Scan(
			&req.SwapRequestID,
			&req.Status,
			&req.ReceiverSlotID,
			&req.ReceiverSlotTitle,
			&req.ReceiverSlotStartTime,
			&req.ReceiverName,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outgoing swap request: %w", err)
		}
		requests = append(requests, &req)
	}

	return requests, rows.Err()
}
