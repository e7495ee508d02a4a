package localdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"racuni/internal/domain/entity"
)

// ItemStatus is the lifecycle state of a queue item.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemDead    ItemStatus = "dead"
)

// Entity sync states as kept in the local cache.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncFailed  = "failed"
)

// Item is one queued mutation.
type Item struct {
	ID            string
	Seq           int64
	EntityType    string
	EntityID      string
	Operation     entity.Operation
	Payload       json.RawMessage // nil for delete
	CreatedAt     time.Time
	RetryCount    int
	LastError     string
	NextAttemptAt time.Time
	Status        ItemStatus
}

const itemColumns = `id, seq, entity_type, entity_id, operation, payload, created_at,
	retry_count, last_error, next_attempt_at, status`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (Item, error) {
	var it Item
	var payload, lastError sql.NullString
	var createdAt, nextAttempt int64
	err := s.Scan(&it.ID, &it.Seq, &it.EntityType, &it.EntityID, &it.Operation, &payload,
		&createdAt, &it.RetryCount, &lastError, &nextAttempt, &it.Status)
	if err != nil {
		return Item{}, err
	}
	if payload.Valid {
		it.Payload = json.RawMessage(payload.String)
	}
	it.LastError = lastError.String
	it.CreatedAt = fromMillis(createdAt)
	it.NextAttemptAt = fromMillis(nextAttempt)
	return it, nil
}

func (d *DB) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync queue: %w", err)
	}
	return items, nil
}

// Record applies a local mutation to the entity cache and appends it to the
// queue in one transaction. For update, present non-null keys of data are
// merged into the cached object.
func (d *DB) Record(ctx context.Context, entityType, entityID string, op entity.Operation, data json.RawMessage) (*Item, error) {
	if entityType == "" || entityID == "" {
		return nil, errors.New("entity type and id are required")
	}
	if !entity.IsValidOperation(op) {
		return nil, fmt.Errorf("invalid operation %q", op)
	}

	var fields map[string]json.RawMessage
	if op != entity.OpDelete {
		if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
			return nil, fmt.Errorf("%s data must be a JSON object", op)
		}
	}

	now := d.now()
	item := &Item{
		ID:            uuid.New().String(),
		EntityType:    entityType,
		EntityID:      entityID,
		Operation:     op,
		CreatedAt:     fromMillis(millis(now)),
		NextAttemptAt: fromMillis(millis(now)),
		Status:        ItemPending,
	}
	if op != entity.OpDelete {
		item.Payload = append(json.RawMessage(nil), data...)
	}

	err := d.withTx(ctx, func(tx *sql.Tx) error {
		switch op {
		case entity.OpCreate:
			if err := upsertLocal(tx, entityType, entityID, data, now); err != nil {
				return err
			}
		case entity.OpUpdate:
			merged, err := mergeLocal(tx, entityType, entityID, fields)
			if err != nil {
				return err
			}
			if err := upsertLocal(tx, entityType, entityID, merged, now); err != nil {
				return err
			}
		case entity.OpDelete:
			_, err := tx.Exec(`
				UPDATE entities SET is_deleted = 1, sync_status = ?, local_updated_at = ?
				WHERE entity_type = ? AND entity_id = ?`,
				SyncPending, millis(now), entityType, entityID)
			if err != nil {
				return fmt.Errorf("failed to mark %s %s deleted: %w", entityType, entityID, err)
			}
		}

		var payload any
		if item.Payload != nil {
			payload = string(item.Payload)
		}
		res, err := tx.Exec(`
			INSERT INTO sync_queue (id, entity_type, entity_id, operation, payload, created_at, next_attempt_at, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, entityType, entityID, string(op), payload, millis(now), millis(now), string(ItemPending))
		if err != nil {
			return fmt.Errorf("failed to enqueue mutation: %w", err)
		}
		item.Seq, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[sync] Queued %s %s/%s (%s)", op, entityType, entityID, item.ID)
	return item, nil
}

func upsertLocal(tx *sql.Tx, entityType, entityID string, data json.RawMessage, now time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO entities (entity_type, entity_id, data, local_updated_at, sync_status, is_deleted)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			data = excluded.data,
			local_updated_at = excluded.local_updated_at,
			sync_status = excluded.sync_status,
			is_deleted = 0`,
		entityType, entityID, string(data), millis(now), SyncPending)
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", entityType, entityID, err)
	}
	return nil
}

func mergeLocal(tx *sql.Tx, entityType, entityID string, fields map[string]json.RawMessage) (json.RawMessage, error) {
	current := make(map[string]json.RawMessage)

	var data string
	err := tx.QueryRow(`SELECT data FROM entities WHERE entity_type = ? AND entity_id = ?`, entityType, entityID).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to read %s %s: %w", entityType, entityID, err)
	default:
		if err := json.Unmarshal([]byte(data), &current); err != nil || current == nil {
			current = make(map[string]json.RawMessage)
		}
	}

	for k, v := range fields {
		if string(v) == "null" {
			continue
		}
		current[k] = v
	}
	return json.Marshal(current)
}

// Ready returns pending items whose next attempt is due, in seq order. An
// item is held back while an earlier item of the same entity is backing off.
func (d *DB) Ready(ctx context.Context) ([]Item, error) {
	now := millis(d.now())
	return d.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM sync_queue q
		WHERE q.status = 'pending' AND q.next_attempt_at <= ?
		AND NOT EXISTS (
			SELECT 1 FROM sync_queue p
			WHERE p.entity_type = q.entity_type AND p.entity_id = q.entity_id
			AND p.status = 'pending' AND p.seq < q.seq AND p.next_attempt_at > ?
		)
		ORDER BY q.seq`, now, now)
}

// Items returns every queue item in seq order.
func (d *DB) Items(ctx context.Context) ([]Item, error) {
	return d.queryItems(ctx, `SELECT `+itemColumns+` FROM sync_queue ORDER BY seq`)
}

// DeadLetters returns the items that will not be retried automatically.
func (d *DB) DeadLetters(ctx context.Context) ([]Item, error) {
	return d.queryItems(ctx, `SELECT `+itemColumns+` FROM sync_queue WHERE status = 'dead' ORDER BY seq`)
}

// Item returns a single queue item.
func (d *DB) Item(ctx context.Context, id string) (*Item, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM sync_queue WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return &it, nil
}

// Counts returns the number of pending and dead items.
func (d *DB) Counts(ctx context.Context) (pending, dead int, err error) {
	err = d.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'dead' THEN 1 ELSE 0 END), 0)
		FROM sync_queue`).Scan(&pending, &dead)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count sync queue: %w", err)
	}
	return pending, dead, nil
}

// Complete removes a pushed item. The entity is marked synced once nothing
// else is queued for it.
func (d *DB) Complete(ctx context.Context, id string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		var entityType, entityID string
		err := tx.QueryRow(`DELETE FROM sync_queue WHERE id = ? RETURNING entity_type, entity_id`, id).Scan(&entityType, &entityID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("queue item %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to complete queue item: %w", err)
		}
		return refreshSyncStatus(tx, entityType, entityID)
	})
}

// refreshSyncStatus derives the cached entity's state from its queue items.
func refreshSyncStatus(tx *sql.Tx, entityType, entityID string) error {
	var pending, dead int
	err := tx.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'dead' THEN 1 ELSE 0 END), 0)
		FROM sync_queue WHERE entity_type = ? AND entity_id = ?`, entityType, entityID).Scan(&pending, &dead)
	if err != nil {
		return fmt.Errorf("failed to count items of %s %s: %w", entityType, entityID, err)
	}

	status := SyncSynced
	switch {
	case pending > 0:
		status = SyncPending
	case dead > 0:
		status = SyncFailed
	}
	_, err = tx.Exec(`UPDATE entities SET sync_status = ? WHERE entity_type = ? AND entity_id = ?`, status, entityType, entityID)
	if err != nil {
		return fmt.Errorf("failed to update sync status of %s %s: %w", entityType, entityID, err)
	}
	return nil
}

// MarkFailed records a failed attempt and schedules the next one.
func (d *DB) MarkFailed(ctx context.Context, id, lastError string, nextAttempt time.Time) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE sync_queue SET retry_count = retry_count + 1, last_error = ?, next_attempt_at = ?
		WHERE id = ? AND status = 'pending'`,
		lastError, millis(nextAttempt), id)
	if err != nil {
		return fmt.Errorf("failed to mark queue item failed: %w", err)
	}
	return requireRow(res, id)
}

// MarkDead records a final failed attempt and moves the item to the dead
// letter set.
func (d *DB) MarkDead(ctx context.Context, id, lastError string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		var entityType, entityID string
		err := tx.QueryRow(`
			UPDATE sync_queue SET retry_count = retry_count + 1, last_error = ?, status = 'dead'
			WHERE id = ? AND status = 'pending'
			RETURNING entity_type, entity_id`,
			lastError, id).Scan(&entityType, &entityID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("queue item %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to mark queue item dead: %w", err)
		}
		log.Printf("[sync] Item %s (%s/%s) moved to dead letters: %s", id, entityType, entityID, lastError)
		return refreshSyncStatus(tx, entityType, entityID)
	})
}

// Retry re-queues a dead item for immediate delivery with a fresh retry count.
func (d *DB) Retry(ctx context.Context, id string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		var entityType, entityID string
		err := tx.QueryRow(`
			UPDATE sync_queue SET status = 'pending', retry_count = 0, last_error = NULL, next_attempt_at = ?
			WHERE id = ? AND status = 'dead'
			RETURNING entity_type, entity_id`,
			millis(d.now()), id).Scan(&entityType, &entityID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("dead item %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to retry queue item: %w", err)
		}
		return refreshSyncStatus(tx, entityType, entityID)
	})
}

// Discard drops a dead item. The cached entity forgets its server version so
// the next pull restores it; an entity the server never had is removed.
func (d *DB) Discard(ctx context.Context, id string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		var entityType, entityID string
		err := tx.QueryRow(`DELETE FROM sync_queue WHERE id = ? AND status = 'dead' RETURNING entity_type, entity_id`, id).
			Scan(&entityType, &entityID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("dead item %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to discard queue item: %w", err)
		}

		var remaining int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM sync_queue WHERE entity_type = ? AND entity_id = ?`,
			entityType, entityID).Scan(&remaining); err != nil {
			return fmt.Errorf("failed to count items of %s %s: %w", entityType, entityID, err)
		}
		if remaining == 0 {
			if _, err := tx.Exec(`DELETE FROM entities WHERE entity_type = ? AND entity_id = ? AND remote_updated_at IS NULL`,
				entityType, entityID); err != nil {
				return fmt.Errorf("failed to drop unsynced %s %s: %w", entityType, entityID, err)
			}
			if _, err := tx.Exec(`UPDATE entities SET remote_updated_at = NULL WHERE entity_type = ? AND entity_id = ?`,
				entityType, entityID); err != nil {
				return fmt.Errorf("failed to reset %s %s: %w", entityType, entityID, err)
			}
		}
		return refreshSyncStatus(tx, entityType, entityID)
	})
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	return nil
}
