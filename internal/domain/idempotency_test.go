package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIdempotencyStatusValid(t *testing.T) {
	for _, status := range []IdempotencyStatus{
		IdempotencyStatusProcessing,
		IdempotencyStatusDone,
		IdempotencyStatusFailed,
	} {
		require.True(t, status.Valid(), status)
	}

	// Значения, которые не принимает CHECK в таблице idempotency_keys.
	for _, status := range []IdempotencyStatus{"", "completed", "DONE", "in_progress"} {
		require.False(t, status.Valid(), status)
	}
}

func TestIdempotencyRecordExpired(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	record := IdempotencyRecord{
		Key:       "checkout-42",
		Status:    IdempotencyStatusDone,
		CreatedAt: now.Add(-24 * time.Hour),
		ExpiresAt: now,
	}

	require.False(t, record.Expired(now.Add(-time.Nanosecond)))
	// Граница совпадает с DeleteExpired: ExpiresAt <= before.
	require.True(t, record.Expired(now))
	require.True(t, record.Expired(now.Add(time.Minute)))

	require.True(t, IdempotencyRecord{}.Expired(now), "record without TTL is never replayed")
}
