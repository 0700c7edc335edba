package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/storage/memory"
)

func TestIdempotencyRepository_BeginAndReplay(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	expires := time.Now().UTC().Add(time.Hour)

	created, err := repo.Begin(ctx, " key-1 ", "hash-a", expires)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing || created.Key != "key-1" {
		t.Fatalf("unexpected record: %+v", created)
	}

	existing, err := repo.Begin(ctx, "key-1", "hash-a", expires)
	if !errors.Is(err, domain.ErrIdempotencyKeyExists) {
		t.Fatalf("expected ErrIdempotencyKeyExists, got %v", err)
	}
	if existing.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("expected processing record, got %s", existing.Status)
	}

	if _, err := repo.Begin(ctx, "key-1", "hash-b", expires); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}

	if err := repo.Complete(ctx, "key-1", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	done, err := repo.Begin(ctx, "key-1", "hash-a", expires)
	if !errors.Is(err, domain.ErrIdempotencyKeyExists) {
		t.Fatalf("expected ErrIdempotencyKeyExists, got %v", err)
	}
	if done.Status != domain.IdempotencyStatusDone || string(done.ResponseBody) != `{"ok":true}` {
		t.Fatalf("unexpected done record: %+v", done)
	}
}

func TestIdempotencyRepository_FailStoresError(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()

	if _, err := repo.Begin(ctx, "key-2", "hash", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := repo.Fail(ctx, "key-2", 9, "order status and payment status are inconsistent"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	record, err := repo.Begin(ctx, "key-2", "hash", time.Now().Add(time.Hour))
	if !errors.Is(err, domain.ErrIdempotencyKeyExists) {
		t.Fatalf("expected ErrIdempotencyKeyExists, got %v", err)
	}
	if record.Status != domain.IdempotencyStatusFailed || record.ErrorCode != 9 {
		t.Fatalf("unexpected failed record: %+v", record)
	}

	if err := repo.Complete(ctx, "missing", nil); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
	if _, err := repo.Begin(ctx, "  ", "hash", time.Now()); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
}

func TestIdempotencyRepository_ExpiredKeysAreReusableAndDeleted(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	past := time.Now().UTC().Add(-time.Minute)

	for _, key := range []string{"old-1", "old-2", "old-3"} {
		if _, err := repo.Begin(ctx, key, "hash", past); err != nil {
			t.Fatalf("Begin %s failed: %v", key, err)
		}
	}
	if _, err := repo.Begin(ctx, "fresh", "hash", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Begin fresh failed: %v", err)
	}

	// просроченный ключ принимается как новый, даже с другим запросом
	if _, err := repo.Begin(ctx, "old-1", "other-hash", past); err != nil {
		t.Fatalf("expected expired key to be reusable, got %v", err)
	}

	deleted, err := repo.DeleteExpired(ctx, time.Now().UTC(), 2)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted with limit, got %d", deleted)
	}

	deleted, err = repo.DeleteExpired(ctx, time.Now().UTC(), 0)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected remaining expired record deleted, got %d", deleted)
	}

	if _, err := repo.Begin(ctx, "fresh", "hash", time.Now().Add(time.Hour)); !errors.Is(err, domain.ErrIdempotencyKeyExists) {
		t.Fatalf("fresh key must survive cleanup, got %v", err)
	}
}
