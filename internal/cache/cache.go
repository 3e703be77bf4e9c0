package cache

import (
	"context"
	"errors"
	"time"

	"specsbiz/backend/internal/domain"
)

// ErrLocked means another instance holds the rebuild lock for the key.
var ErrLocked = errors.New("snapshot rebuild in progress")

// HealthCache keeps business health snapshots per owner namespace.
type HealthCache interface {
	Get(ctx context.Context, ownerID string) (*domain.BusinessHealth, bool, error)
	Set(ctx context.Context, ownerID string, value *domain.BusinessHealth, ttl time.Duration) error
	Invalidate(ctx context.Context, ownerID string) error
	// Lock guards a snapshot rebuild. The returned func releases the lock.
	Lock(ctx context.Context, ownerID string, ttl time.Duration) (func(), error)
}

type NoopHealthCache struct{}

func (NoopHealthCache) Get(_ context.Context, _ string) (*domain.BusinessHealth, bool, error) {
	return nil, false, nil
}

func (NoopHealthCache) Set(_ context.Context, _ string, _ *domain.BusinessHealth, _ time.Duration) error {
	return nil
}

func (NoopHealthCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

func (NoopHealthCache) Lock(_ context.Context, _ string, _ time.Duration) (func(), error) {
	return func() {}, nil
}
