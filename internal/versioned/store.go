// Package versioned 乐观并发控制：比较版本并修改（compare-and-swap）
//
// A Store never performs "read version, then conditionally write" as two calls. Every
// update is handed to the backend's CompareAndSwap, which must compare the stored
// version, run the mutation and persist the bumped version inside one atomic boundary
// (a transaction holding row locks, or a mutex for the in-memory backend).
package versioned

import (
	"context"
	"errors"
	"fmt"

	"fieldops/internal/domain"

	"go.uber.org/zap"
)

// Record 受乐观锁保护的实体
type Record interface {
	RecordID() string
	GetVersion() int
	SetVersion(v int)
}

// Mutator changes current in place. view is a read view consistent with the pending
// write, so checks made against it cannot be invalidated before the commit.
// Returning an error aborts the operation with nothing persisted.
type Mutator[T Record, V any] func(ctx context.Context, current T, view V) error

// Backend is the atomic primitive a storage layer must provide.
type Backend[T Record, V any] interface {
	// Insert persists a new record whose version is already 1. check, when non-nil,
	// runs inside the same atomic boundary before the write.
	Insert(ctx context.Context, tenantID string, record T, check Mutator[T, V]) error

	// CompareAndSwap loads the record under a write lock and calls Apply. On success the
	// stored record carries version expectedVersion+1. A stale expectedVersion yields
	// *domain.VersionConflictError and no write.
	CompareAndSwap(ctx context.Context, tenantID, id string, expectedVersion int, mutate Mutator[T, V]) (T, error)
}

// Apply is the version check and bump every backend runs while holding its lock.
func Apply[T Record, V any](ctx context.Context, entity string, current T, expectedVersion int, view V, mutate Mutator[T, V]) error {
	id := current.RecordID()
	if current.GetVersion() != expectedVersion {
		return &domain.VersionConflictError{
			Entity:   entity,
			ID:       id,
			Expected: expectedVersion,
			Actual:   current.GetVersion(),
		}
	}
	if mutate != nil {
		if err := mutate(ctx, current, view); err != nil {
			return err
		}
	}
	if current.RecordID() != id {
		return fmt.Errorf("%s %s: mutation must not change the record id", entity, id)
	}
	current.SetVersion(expectedVersion + 1)
	return nil
}

// Store 通用版本化存储
type Store[T Record, V any] struct {
	entity  string
	backend Backend[T, V]
	logger  *zap.Logger
}

// NewStore wraps a backend. entity names the record kind in errors and logs ("region", "job").
func NewStore[T Record, V any](entity string, backend Backend[T, V], logger *zap.Logger) *Store[T, V] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store[T, V]{entity: entity, backend: backend, logger: logger}
}

// Create 新建实体，版本号从 1 开始
func (s *Store[T, V]) Create(ctx context.Context, tenantID string, record T, check Mutator[T, V]) (T, error) {
	var zero T
	if tenantID == "" {
		return zero, domain.NewValidationError("tenant_id", "is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	record.SetVersion(1)
	if err := s.backend.Insert(ctx, tenantID, record, check); err != nil {
		return zero, err
	}

	s.logger.Debug("Record created",
		zap.String("entity", s.entity),
		zap.String("tenant_id", tenantID),
		zap.String("id", record.RecordID()),
	)
	return record, nil
}

// UpdateWithVersion 按期望版本原子更新；版本不一致时返回 VersionConflictError 且不写入。
// The store never retries: re-reading and retrying is the caller's decision.
func (s *Store[T, V]) UpdateWithVersion(ctx context.Context, tenantID, id string, expectedVersion int, mutate Mutator[T, V]) (T, error) {
	var zero T
	switch {
	case tenantID == "":
		return zero, domain.NewValidationError("tenant_id", "is required")
	case id == "":
		return zero, domain.NewValidationError("id", "is required")
	case expectedVersion < 1:
		return zero, domain.NewValidationError("expected_version", "must be >= 1")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	updated, err := s.backend.CompareAndSwap(ctx, tenantID, id, expectedVersion, mutate)
	if err != nil {
		var vce *domain.VersionConflictError
		if errors.As(err, &vce) {
			s.logger.Info("Version conflict",
				zap.String("entity", s.entity),
				zap.String("tenant_id", tenantID),
				zap.String("id", id),
				zap.Int("expected_version", expectedVersion),
				zap.Int("current_version", vce.Actual),
			)
		}
		return zero, err
	}

	if got := updated.GetVersion(); got != expectedVersion+1 {
		return zero, fmt.Errorf("%s %s: backend returned version %d, want %d", s.entity, id, got, expectedVersion+1)
	}
	return updated, nil
}
