package syncer

import (
	"context"

	"racuni/internal/domain/entity"
)

// Store is the remote store behind the sync endpoints. Every method is scoped
// to a single user; rows owned by anyone else are never read or changed.
type Store interface {
	// Create upserts the full row. Absent fields take their defaults.
	Create(ctx context.Context, m Mutation) error
	// Update overwrites only the fields present in the payload.
	Update(ctx context.Context, m Mutation) error
	// Delete tombstones the row, or removes it for hard-deleted kinds.
	Delete(ctx context.Context, m Mutation) error

	// ListLive returns the user's rows for a kind, excluding tombstones.
	ListLive(ctx context.Context, d entity.Descriptor, userID string) ([]entity.Record, error)
	// Stats returns the live row count and newest updated_at for a kind.
	Stats(ctx context.Context, d entity.Descriptor, userID string) (KindStats, error)
}
