package migrations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"token-detector/internal/logging"
	chstore "token-detector/internal/storage/clickhouse"
)

const createClickhouseVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    UInt32,
    name       String,
    applied_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree
ORDER BY version`

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RunClickhouseMigrations creates the database named in dsn if needed and applies
// the embedded ClickHouse migrations that are not yet recorded. The returned
// connection points at that database.
func RunClickhouseMigrations(ctx context.Context, dsn string, logger *zerolog.Logger) (*chstore.Conn, error) {
	log := logging.OrNop(logger).With().Str("component", "migrations").Str("database", "clickhouse").Logger()

	all, err := Load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}

	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := createDatabase(ctx, dsn, dbName); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db %s: %w", dbName, err)
	}
	if err := migrateClickhouse(ctx, conn, all, log); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func createDatabase(ctx context.Context, dsn, dbName string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse server: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+dbName); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

func migrateClickhouse(ctx context.Context, conn *chstore.Conn, all []Migration, log zerolog.Logger) error {
	if err := conn.Exec(ctx, createClickhouseVersionTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := conn.Query(ctx, "SELECT version FROM schema_migrations FINAL")
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var v uint32
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan applied migration: %w", err)
		}
		applied[int(v)] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}

	for _, m := range all {
		if applied[m.Version] {
			continue
		}
		// The native protocol runs one statement per Exec.
		stmts, err := splitStatements(m.SQL)
		if err != nil {
			return fmt.Errorf("migration %03d_%s: %w", m.Version, m.Name, err)
		}
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %03d_%s: %w", m.Version, m.Name, err)
			}
		}
		if err := conn.Exec(ctx,
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			uint32(m.Version), m.Name, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("record migration %03d: %w", m.Version, err)
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("migration applied")
	}
	return nil
}

var errUnterminated = errors.New("unterminated string or comment")

// splitStatements splits SQL on top-level semicolons. Semicolons inside quoted
// strings, identifiers and comments are kept; comments are dropped from output.
func splitStatements(sql string) ([]string, error) {
	var (
		stmts []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
				continue
			}
			i += end
			cur.WriteByte('\n')
		case ch == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return nil, errUnterminated
			}
			i += end + 3
			cur.WriteByte(' ')
		case ch == '\'' || ch == '"' || ch == '`':
			j := i + 1
			for ; j < len(sql); j++ {
				if sql[j] == '\\' {
					j++
					continue
				}
				if sql[j] == ch {
					if j+1 < len(sql) && sql[j+1] == ch {
						j++
						continue
					}
					break
				}
			}
			if j >= len(sql) {
				return nil, errUnterminated
			}
			cur.WriteString(sql[i : j+1])
			i = j
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return stmts, nil
}

// databaseFromDSN extracts the database path segment of a clickhouse:// DSN.
func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.Trim(u.Path, "/")
	if db == "" {
		return "", errors.New("clickhouse dsn has no database")
	}
	if !identifierPattern.MatchString(db) {
		return "", fmt.Errorf("clickhouse database %q is not a plain identifier", db)
	}
	return db, nil
}
