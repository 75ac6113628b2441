package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"chefcoin-bridge/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded schema files in lexical
// order. Every file is written to be idempotent (IF NOT EXISTS guards),
// so running the full set on an initialized database is a no-op.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := fs.Glob(PostgresFS, "postgres/*.sql")
	if err != nil {
		return fmt.Errorf("glob embedded postgres migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(PostgresFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}

	return nil
}
