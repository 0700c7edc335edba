package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

type idempotencyRepository struct {
	q sqlx.ExtContext
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return store.Idempotency()
}

type idempotencyRow struct {
	Key          string    `db:"key"`
	RequestHash  string    `db:"request_hash"`
	Status       string    `db:"status"`
	ResponseBody []byte    `db:"response_body"`
	ErrorCode    int       `db:"error_code"`
	ErrorMessage string    `db:"error_message"`
	ExpiresAt    time.Time `db:"expires_at"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *idempotencyRepository) Begin(ctx context.Context, key, requestHash string, expiresAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	// Просроченную запись перезаписываем: ключ снова свободен.
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO idempotency_keys (
			key, request_hash, status, response_body, error_code, error_message,
			expires_at, created_at, updated_at
		) VALUES ($1,$2,'processing',NULL,0,'',$3,$4,$4)
		ON CONFLICT (key) DO UPDATE
		SET request_hash = EXCLUDED.request_hash,
		    status = 'processing',
		    response_body = NULL,
		    error_code = 0,
		    error_message = '',
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE idempotency_keys.expires_at <= EXCLUDED.created_at
	`, key, requestHash, expiresAt.UTC(), now)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("begin idempotency key: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 1 {
		return domain.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			Status:      domain.IdempotencyStatusProcessing,
			ExpiresAt:   expiresAt.UTC(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	}

	existing, err := r.get(ctx, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyExists
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, responseBody []byte) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, responseBody, 0, "")
}

func (r *idempotencyRepository) Fail(ctx context.Context, key string, code int, message string) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, nil, code, message)
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if before.IsZero() {
		before = time.Now().UTC()
	}

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.q.ExecContext(ctx, `
			DELETE FROM idempotency_keys
			WHERE key IN (
				SELECT key
				FROM idempotency_keys
				WHERE expires_at <= $1
				ORDER BY expires_at
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.q.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= $1`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *idempotencyRepository) get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	var row idempotencyRow
	err := sqlx.GetContext(ctx, r.q, &row, `
		SELECT key, request_hash, status, response_body, error_code, error_message,
		       expires_at, created_at, updated_at
		FROM idempotency_keys
		WHERE key = $1
	`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency key: %w", err)
	}

	status := domain.IdempotencyStatus(row.Status)
	if !status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", row.Status, key)
	}

	return domain.IdempotencyRecord{
		Key:          row.Key,
		RequestHash:  row.RequestHash,
		Status:       status,
		ResponseBody: append([]byte(nil), row.ResponseBody...),
		ErrorCode:    row.ErrorCode,
		ErrorMessage: row.ErrorMessage,
		ExpiresAt:    row.ExpiresAt.UTC(),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}, nil
}

func (r *idempotencyRepository) finish(ctx context.Context, key string, status domain.IdempotencyStatus, body []byte, code int, message string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status = $1,
		    response_body = $2,
		    error_code = $3,
		    error_message = $4,
		    updated_at = $5
		WHERE key = $6
	`, string(status), body, code, message, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("update idempotency key: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}
