package migrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"token-detector/internal/logging"
	"token-detector/internal/storage/postgres"
)

// postgresLockKey serializes concurrent detectors migrating the same database.
const postgresLockKey int64 = 0x746f6b656e73

const createPostgresVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// RunPostgresMigrations applies the embedded PostgreSQL migrations that are not yet recorded.
// Each migration runs in its own transaction together with its version row.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool, logger *zerolog.Logger) error {
	log := logging.OrNop(logger).With().Str("component", "migrations").Str("database", "postgres").Logger()

	all, err := Load(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", postgresLockKey); err != nil {
		return fmt.Errorf("take migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", postgresLockKey); err != nil {
			log.Warn().Err(err).Msg("release migration lock")
		}
	}()

	if _, err := conn.Exec(ctx, createPostgresVersionTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := conn.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int32])
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[int(v)] = true
	}

	for _, m := range all {
		if applied[m.Version] {
			continue
		}
		if err := applyPostgres(ctx, conn.Conn(), m); err != nil {
			return err
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("migration applied")
	}
	return nil
}

func applyPostgres(ctx context.Context, conn *pgx.Conn, m Migration) (err error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %03d: %w", m.Version, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("apply migration %03d_%s: %w", m.Version, m.Name, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.Version, m.Name); err != nil {
		return fmt.Errorf("record migration %03d: %w", m.Version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %03d: %w", m.Version, err)
	}
	return nil
}
