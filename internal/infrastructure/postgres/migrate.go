package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// Migration is one embedded schema step, named V<version>__<description>.up.sql.
type Migration struct {
	Version     int
	Description string
	SQL         string
	Checksum    string
}

// Migrations returns the embedded migrations sorted by version.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		base, ok := strings.CutSuffix(name, ".up.sql")
		if !ok {
			continue
		}
		versionPart, description, ok := strings.Cut(base, "__")
		if !ok {
			return nil, fmt.Errorf("malformed migration name %q", name)
		}
		version, err := strconv.Atoi(strings.TrimPrefix(versionPart, "V"))
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("malformed migration version in %q", name)
		}

		content, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		sum := sha256.Sum256(content)
		out = append(out, Migration{
			Version:     version,
			Description: description,
			SQL:         string(content),
			Checksum:    hex.EncodeToString(sum[:]),
		})
	}

	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

// Migrate applies every embedded migration that has not been recorded in
// schema_migrations. Each migration runs in its own transaction. It returns
// the number of migrations applied.
func (db *DB) Migrate(ctx context.Context) (int, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			checksum    TEXT NOT NULL,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := make(map[int]string)
	rows, err := db.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	for rows.Next() {
		var version int
		var checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan schema_migrations: %w", err)
		}
		applied[version] = checksum
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating schema_migrations: %w", err)
	}

	migrations, err := Migrations()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range migrations {
		if checksum, ok := applied[m.Version]; ok {
			if checksum != m.Checksum {
				log.Printf("Warning: migration V%d (%s) changed after it was applied", m.Version, m.Description)
			}
			continue
		}

		err := db.WithTx(ctx, func(tx *Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("failed to apply migration V%d: %w", m.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, description, checksum) VALUES ($1, $2, $3)`,
				m.Version, m.Description, m.Checksum,
			); err != nil {
				return fmt.Errorf("failed to record migration V%d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}

		log.Printf("Applied migration V%d (%s)", m.Version, m.Description)
		count++
	}

	return count, nil
}
