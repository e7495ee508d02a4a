package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"racuni/internal/domain/entity"
	"racuni/internal/domain/syncer"
)

// statements holds the SQL of one kind, built once from its field list.
type statements struct {
	create string
	update string
	delete string
	list   string
	stats  string
}

// EntityStore is the Postgres implementation of syncer.Store.
type EntityStore struct {
	db    *DB
	stmts map[entity.Kind]statements
}

// Ensure EntityStore implements syncer.Store
var _ syncer.Store = (*EntityStore)(nil)

func NewEntityStore(db *DB, registry *entity.Registry) *EntityStore {
	s := &EntityStore{db: db, stmts: make(map[entity.Kind]statements)}
	for _, d := range registry.Descriptors() {
		s.stmts[d.Kind] = buildStatements(d)
	}
	return s
}

func buildStatements(d entity.Descriptor) statements {
	table := pq.QuoteIdentifier(d.Table)
	cols := entity.Columns(d.New())
	soft := d.Delete == entity.SoftDelete

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}

	// create: $1 id, $2 user_id, $3..$n+2 fields, $n+3 client created_at
	insertCols := append([]string{"id", "user_id"}, quoted...)
	insertCols = append(insertCols, "created_at", "updated_at")
	placeholders := make([]string, 0, len(insertCols)+1)
	for i := 1; i <= len(cols)+2; i++ {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
	}
	placeholders = append(placeholders,
		fmt.Sprintf("COALESCE($%d::timestamptz, CURRENT_TIMESTAMP)", len(cols)+3),
		"CURRENT_TIMESTAMP",
	)
	if soft {
		insertCols = append(insertCols, "is_deleted")
		placeholders = append(placeholders, "false")
	}

	sets := make([]string, 0, len(cols)+2)
	for _, c := range quoted {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	if soft {
		sets = append(sets, "is_deleted = false")
	}

	create := fmt.Sprintf(`
		INSERT INTO %s AS t (%s)
		VALUES (%s)
		ON CONFLICT (id) DO UPDATE SET %s
		WHERE t.user_id = EXCLUDED.user_id`,
		table, strings.Join(insertCols, ", "), strings.Join(placeholders, ", "), strings.Join(sets, ", "))

	// update: $1 id, $2 user_id, $3.. fields
	coalesce := make([]string, 0, len(cols)+1)
	for i, c := range quoted {
		coalesce = append(coalesce, fmt.Sprintf("%s = COALESCE($%d, %s)", c, i+3, c))
	}
	coalesce = append(coalesce, "updated_at = CURRENT_TIMESTAMP")
	update := fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE id = $1 AND user_id = $2`,
		table, strings.Join(coalesce, ", "))

	var del string
	if soft {
		del = fmt.Sprintf(`UPDATE %s SET is_deleted = true, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND user_id = $2`, table)
	} else {
		del = fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND user_id = $2`, table)
	}

	live := "user_id = $1"
	if soft {
		live += " AND NOT is_deleted"
	}
	list := fmt.Sprintf(`
		SELECT id, user_id, %s, created_at, updated_at
		FROM %s
		WHERE %s
		ORDER BY updated_at DESC`,
		strings.Join(quoted, ", "), table, live)
	stats := fmt.Sprintf(`SELECT COUNT(*), MAX(updated_at) FROM %s WHERE %s`, table, live)

	return statements{create: create, update: update, delete: del, list: list, stats: stats}
}

func (s *EntityStore) statementsFor(d entity.Descriptor) (statements, error) {
	st, ok := s.stmts[d.Kind]
	if !ok {
		return statements{}, fmt.Errorf("%w: %q", syncer.ErrUnknownEntityType, d.Kind)
	}
	return st, nil
}

func fieldArgs(p entity.Payload) []any {
	fields := p.Fields()
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f.Slot.DriverValue()
	}
	return args
}

func (s *EntityStore) Create(ctx context.Context, m syncer.Mutation) error {
	st, err := s.statementsFor(m.Descriptor)
	if err != nil {
		return err
	}

	payload := m.Descriptor.Clone(m.Payload)
	entity.ApplyDefaults(payload)

	var createdAt any
	if m.ClientCreatedAt != nil {
		createdAt = m.ClientCreatedAt.UTC()
	}

	args := append([]any{m.EntityID, m.UserID}, fieldArgs(payload)...)
	args = append(args, createdAt)

	if _, err := s.db.ExecContext(ctx, st.create, args...); err != nil {
		return fmt.Errorf("failed to upsert %s: %w", m.Descriptor.Table, err)
	}
	return nil
}

func (s *EntityStore) Update(ctx context.Context, m syncer.Mutation) error {
	st, err := s.statementsFor(m.Descriptor)
	if err != nil {
		return err
	}

	args := append([]any{m.EntityID, m.UserID}, fieldArgs(m.Payload)...)
	if _, err := s.db.ExecContext(ctx, st.update, args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", m.Descriptor.Table, err)
	}
	return nil
}

func (s *EntityStore) Delete(ctx context.Context, m syncer.Mutation) error {
	st, err := s.statementsFor(m.Descriptor)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, st.delete, m.EntityID, m.UserID); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", m.Descriptor.Table, err)
	}
	return nil
}

func (s *EntityStore) ListLive(ctx context.Context, d entity.Descriptor, userID string) ([]entity.Record, error) {
	st, err := s.statementsFor(d)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, st.list, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d.Table, err)
	}
	defer rows.Close()

	var records []entity.Record
	for rows.Next() {
		rec := entity.Record{Payload: d.New()}
		fields := rec.Payload.Fields()

		dest := make([]any, 0, len(fields)+4)
		dest = append(dest, &rec.ID, &rec.UserID)
		for _, f := range fields {
			dest = append(dest, f.Slot)
		}
		dest = append(dest, &rec.CreatedAt, &rec.UpdatedAt)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", d.Table, err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", d.Table, err)
	}

	return records, nil
}

func (s *EntityStore) Stats(ctx context.Context, d entity.Descriptor, userID string) (syncer.KindStats, error) {
	st, err := s.statementsFor(d)
	if err != nil {
		return syncer.KindStats{}, err
	}

	var stats syncer.KindStats
	var latest sql.NullTime
	if err := s.db.QueryRowContext(ctx, st.stats, userID).Scan(&stats.Count, &latest); err != nil {
		return syncer.KindStats{}, fmt.Errorf("failed to count %s: %w", d.Table, err)
	}
	if latest.Valid {
		t := latest.Time.UTC()
		stats.LatestUpdated = &t
	}
	return stats, nil
}
