package base

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier общий интерфейс для выполнения запросов: ему удовлетворяют
// и *pgxpool.Pool, и pgx.Tx. Методы репозиториев, которые должны выполняться
// внутри транзакции, принимают Querier явно — чтобы чтения и записи одной
// операции нельзя было случайно развести по разным соединениям.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IsNotFound проверяет является ли ошибка "строка не найдена"
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
