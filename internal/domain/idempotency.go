package domain

import (
	"context"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — запрос принят и ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — запрос завершён, ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — запрос завершился ошибкой, сохранены её код и текст.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyRecord хранит результат мутирующего вызова по idempotency-key.
// RequestHash привязывает ключ к методу и телу запроса.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       IdempotencyStatus
	ResponseBody []byte
	ErrorCode    int
	ErrorMessage string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired сообщает, что ключ отжил своё к моменту now и может быть занят заново.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// IdempotencyRepository хранит ключи идемпотентности мутирующих вызовов.
type IdempotencyRepository interface {
	// Begin резервирует ключ в статусе processing. Если ключ уже есть, возвращает
	// существующую запись вместе с ErrIdempotencyKeyExists или ErrIdempotencyHashMismatch.
	Begin(ctx context.Context, key, requestHash string, expiresAt time.Time) (IdempotencyRecord, error)
	// Complete сохраняет успешный ответ.
	Complete(ctx context.Context, key string, responseBody []byte) error
	// Fail сохраняет код и текст ошибки, чтобы повтор вернул тот же результат.
	Fail(ctx context.Context, key string, code int, message string) error
	// DeleteExpired удаляет не больше limit записей с ExpiresAt <= before.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
