package session

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const createMigrationsTableSQL = `
CREATE TABLE IF NOT EXISTS warelay_migrations (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	checksum   TEXT NOT NULL
);`

type migrationFile struct {
	Name     string
	SQL      string
	Checksum string
}

// loadMigrations reads migration files from the embedded filesystem and
// sorts them by name.
func loadMigrations() ([]migrationFile, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("session: read migrations dir: %w", err)
	}

	files := make([]migrationFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("session: read migration %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(data)
		files = append(files, migrationFile{
			Name:     entry.Name(),
			SQL:      string(data),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Migrate applies pending schema migrations in order. Already-applied
// migrations are verified against their recorded checksum so an edited
// migration fails loudly instead of silently diverging.
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	files, err := loadMigrations()
	if err != nil {
		return err
	}

	if _, err := b.pool.Exec(ctx, createMigrationsTableSQL); err != nil {
		return fmt.Errorf("session: create migrations table: %w", err)
	}

	applied := make(map[string]string)
	rows, err := b.pool.Query(ctx, `SELECT name, checksum FROM warelay_migrations`)
	if err != nil {
		return fmt.Errorf("session: load applied migrations: %w", err)
	}
	for rows.Next() {
		var name, checksum string
		if err := rows.Scan(&name, &checksum); err != nil {
			rows.Close()
			return fmt.Errorf("session: scan migration row: %w", err)
		}
		applied[name] = checksum
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("session: load applied migrations: %w", err)
	}

	for _, f := range files {
		if checksum, ok := applied[f.Name]; ok {
			if checksum != f.Checksum {
				return fmt.Errorf("session: migration %s was modified after being applied", f.Name)
			}
			continue
		}

		err := b.withTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, f.SQL); err != nil {
				return fmt.Errorf("session: apply migration %s: %w", f.Name, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO warelay_migrations (name, checksum) VALUES ($1, $2)`,
				f.Name, f.Checksum,
			); err != nil {
				return fmt.Errorf("session: record migration %s: %w", f.Name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
