package localdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entity is a cached copy of one user entity.
type Entity struct {
	Type            string
	ID              string
	Data            json.RawMessage
	RemoteUpdatedAt *time.Time
	LocalUpdatedAt  time.Time
	SyncStatus      string
	Deleted         bool
}

// MergeOutcome reports what MergeRemote did with a server copy.
type MergeOutcome int

const (
	MergeApplied MergeOutcome = iota
	MergeSkippedPending
	MergeSkippedStale
)

func (o MergeOutcome) String() string {
	switch o {
	case MergeApplied:
		return "applied"
	case MergeSkippedPending:
		return "skipped_pending"
	case MergeSkippedStale:
		return "skipped_stale"
	}
	return "unknown"
}

const entityColumns = `entity_type, entity_id, data, remote_updated_at, local_updated_at, sync_status, is_deleted`

func scanEntity(s scanner) (Entity, error) {
	var e Entity
	var data string
	var remote sql.NullInt64
	var local int64
	if err := s.Scan(&e.Type, &e.ID, &data, &remote, &local, &e.SyncStatus, &e.Deleted); err != nil {
		return Entity{}, err
	}
	e.Data = json.RawMessage(data)
	e.LocalUpdatedAt = fromMillis(local)
	if remote.Valid {
		t := fromNanos(remote.Int64)
		e.RemoteUpdatedAt = &t
	}
	return e, nil
}

// Entity returns the cached entity, including a locally deleted one.
func (d *DB) Entity(ctx context.Context, entityType, entityID string) (*Entity, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", entityType, entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", entityType, entityID, err)
	}
	return &e, nil
}

// Entities returns the live cached entities of one type ordered by id.
func (d *DB) Entities(ctx context.Context, entityType string) ([]Entity, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE entity_type = ? AND is_deleted = 0
		ORDER BY entity_id`, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", entityType, err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", entityType, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", entityType, err)
	}
	return out, nil
}

// MergeRemote stores a server copy unless the entity still has queued local
// mutations or the cached server copy is at least as new (last writer wins
// on updatedAt).
func (d *DB) MergeRemote(ctx context.Context, entityType, entityID string, data json.RawMessage, updatedAt time.Time) (MergeOutcome, error) {
	outcome := MergeApplied
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		var queued int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM sync_queue WHERE entity_type = ? AND entity_id = ?`,
			entityType, entityID).Scan(&queued); err != nil {
			return fmt.Errorf("failed to check queue for %s %s: %w", entityType, entityID, err)
		}
		if queued > 0 {
			outcome = MergeSkippedPending
			return nil
		}

		var remote sql.NullInt64
		err := tx.QueryRow(`SELECT remote_updated_at FROM entities WHERE entity_type = ? AND entity_id = ?`,
			entityType, entityID).Scan(&remote)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read %s %s: %w", entityType, entityID, err)
		}
		if remote.Valid && remote.Int64 >= nanos(updatedAt) {
			outcome = MergeSkippedStale
			return nil
		}

		_, err = tx.Exec(`
			INSERT INTO entities (entity_type, entity_id, data, remote_updated_at, local_updated_at, sync_status, is_deleted)
			VALUES (?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT (entity_type, entity_id) DO UPDATE SET
				data = excluded.data,
				remote_updated_at = excluded.remote_updated_at,
				local_updated_at = excluded.local_updated_at,
				sync_status = excluded.sync_status,
				is_deleted = 0`,
			entityType, entityID, string(data), nanos(updatedAt), millis(d.now()), SyncSynced)
		if err != nil {
			return fmt.Errorf("failed to merge %s %s: %w", entityType, entityID, err)
		}
		return nil
	})
	return outcome, err
}

// PruneRemote marks deleted every synced entity of one type that the server
// no longer returns. keep holds the ids present in the latest snapshot.
// Entities never seen on the server or with queued mutations are left alone.
func (d *DB) PruneRemote(ctx context.Context, entityType string, keep []string) (int, error) {
	present := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		present[id] = struct{}{}
	}

	removed := 0
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT e.entity_id FROM entities e
			WHERE e.entity_type = ? AND e.is_deleted = 0 AND e.remote_updated_at IS NOT NULL
			AND NOT EXISTS (
				SELECT 1 FROM sync_queue q WHERE q.entity_type = e.entity_type AND q.entity_id = e.entity_id
			)`, entityType)
		if err != nil {
			return fmt.Errorf("failed to list synced %s: %w", entityType, err)
		}
		var gone []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan %s: %w", entityType, err)
			}
			if _, ok := present[id]; !ok {
				gone = append(gone, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating %s: %w", entityType, err)
		}

		now := millis(d.now())
		for _, id := range gone {
			if _, err := tx.Exec(`
				UPDATE entities SET is_deleted = 1, sync_status = ?, local_updated_at = ?
				WHERE entity_type = ? AND entity_id = ?`,
				SyncSynced, now, entityType, id); err != nil {
				return fmt.Errorf("failed to prune %s %s: %w", entityType, id, err)
			}
		}
		removed = len(gone)
		return nil
	})
	return removed, err
}
