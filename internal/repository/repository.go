// Пакет repository — каталог Audio Store в PostgreSQL: учётные записи
// (users) и метаданные аудиофайлов (audio_files). Байты файлов здесь
// не хранятся, запись каталога ссылается на blob по blob_handle.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound — нет пользователя или записи о файле с таким ключом.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — занято уникальное значение: username, email или blob_handle.
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// DBTX — общее подмножество *pgxpool.Pool и pgx.Tx. Репозитории
// принимают его, чтобы удаление пользователя вместе с его файлами
// выполнялось в одной транзакции.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner открывает транзакции каталога.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx коммитит, если fn вернула nil, иначе откатывает и возвращает
// ошибку fn без обёртки (errors.Is по ErrNotFound/ErrConflict сохраняется).
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("начало транзакции каталога: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // после Commit откат ничего не делает

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("фиксация транзакции каталога: %w", err)
	}
	return nil
}

// pgUniqueViolation — SQLSTATE unique_violation.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	return violatedConstraint(err) != ""
}

// violatedConstraint возвращает имя нарушенного UNIQUE-ограничения
// (users_username_key, users_email_key, audio_files_blob_handle_key)
// или "", если err — не unique_violation.
func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return ""
	}
	if pgErr.ConstraintName == "" {
		return "unknown"
	}
	return pgErr.ConstraintName
}
