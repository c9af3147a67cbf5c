package repository

import (
	"context"
	"fmt"

	"github.com/dkotenko/slotswapper/internal/model"
	"github.com/dkotenko/slotswapper/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Pool возвращает пул соединений (для открытия транзакций в сервисах)
func (r *EventRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Create создаёт новый слот
func (r *EventRepository) Create(ctx context.Context, event *model.Event) error {
	query := `
		INSERT INTO events (title, start_time, end_time, status, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		event.Title,
		event.StartTime,
		event.EndTime,
		event.Status,
		event.UserID,
	).Scan(&event.ID, &event.CreatedAt)

	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	return nil
}

const eventColumns = "id, title, start_time, end_time, status, user_id, created_at"

func scanEvent(row pgx.Row) (*model.Event, error) {
	var event model.Event
	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.StartTime,
		&event.EndTime,
		&event.Status,
		&event.UserID,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetByID получает слот по ID
func (r *EventRepository) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	event, err := scanEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get event by id: %w", err)
	}

	return event, nil
}

// GetByIDForUpdate получает слот по ID с блокировкой строки до конца транзакции
func (r *EventRepository) GetByIDForUpdate(ctx context.Context, q base.Querier, id int64) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 FOR UPDATE`

	event, err := scanEvent(q.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get event for update: %w", err)
	}

	return event, nil
}

// GetByUserID получает все слоты пользователя
func (r *EventRepository) GetByUserID(ctx context.Context, userID int64) ([]*model.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE user_id = $1
		ORDER BY start_time
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get events by user: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// GetSwappableExcept получает все слоты на бирже, кроме слотов самого пользователя.
// Имя владельца подставляется из профиля, либо из локальной части email если имя пустое.
func (r *EventRepository) GetSwappableExcept(ctx context.Context, userID int64) ([]*model.MarketplaceSlot, error) {
	query := `
		SELECT e.id, e.title, e.start_time, e.end_time, e.status, e.user_id, e.created_at,
		       CASE WHEN u.name <> '' THEN u.name ELSE split_part(u.email, '@', 1) END AS owner_name
		FROM events e
		JOIN users u ON u.id = e.user_id
		WHERE e.status = $1 AND e.user_id <> $2
		ORDER BY e.start_time
	`

	rows, err := r.pool.Query(ctx, query, model.EventStatusSwappable, userID)
	if err != nil {
		return nil, fmt.Errorf("get swappable events: %w", err)
	}
	defer rows.Close()

	var slots []*model.MarketplaceSlot
	for rows.Next() {
		var slot model.MarketplaceSlot
		err := rows.Scan(
			&slot.ID,
			&slot.Title,
			&slot.StartTime,
			&slot.EndTime,
			&slot.Status,
			&slot.UserID,
			&slot.CreatedAt,
			&slot.OwnerName,
		)
		if err != nil {
			return nil, fmt.Errorf("scan marketplace slot: %w", err)
		}
		slots = append(slots, &slot)
	}

	return slots, rows.Err()
}

// Update обновляет название и время слота
func (r *EventRepository) Update(ctx context.Context, q base.Querier, event *model.Event) error {
	query := `
		UPDATE events
		SET title = $1, start_time = $2, end_time = $3
		WHERE id = $4
	`

	_, err := q.Exec(ctx, query, event.Title, event.StartTime, event.EndTime, event.ID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}

	return nil
}

// UpdateStatus меняет статус одного слота
func (r *EventRepository) UpdateStatus(ctx context.Context, q base.Querier, id int64, status model.EventStatus) error {
	query := `UPDATE events SET status = $1 WHERE id = $2`

	_, err := q.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}

	return nil
}

// UpdateStatusPair меняет статус обоих слотов предложения одним запросом
func (r *EventRepository) UpdateStatusPair(ctx context.Context, q base.Querier, firstID, secondID int64, status model.EventStatus) error {
	query := `UPDATE events SET status = $1 WHERE id = $2 OR id = $3`

	_, err := q.Exec(ctx, query, status, firstID, secondID)
	if err != nil {
		return fmt.Errorf("update event status pair: %w", err)
	}

	return nil
}

// TransferOwner переписывает слот на нового владельца.
// Используется только движком обмена при принятии предложения.
func (r *EventRepository) TransferOwner(ctx context.Context, q base.Querier, id, newOwnerID int64) error {
	query := `UPDATE events SET user_id = $1 WHERE id = $2`

	_, err := q.Exec(ctx, query, newOwnerID, id)
	if err != nil {
		return fmt.Errorf("transfer event owner: %w", err)
	}

	return nil
}

// Delete удаляет слот
func (r *EventRepository) Delete(ctx context.Context, q base.Querier, id int64) error {
	query := `DELETE FROM events WHERE id = $1`

	_, err := q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	return nil
}
