package langpack

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore implements Store with Postgres persistence. The caller owns
// the *sql.DB (driver: lib/pq).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgLangpackSchema = `
CREATE TABLE IF NOT EXISTS langpacks (
	uuid TEXT PRIMARY KEY,
	locale TEXT NOT NULL DEFAULT '',
	platform_version TEXT NOT NULL DEFAULT '',
	version TEXT NOT NULL DEFAULT '',
	manifest JSONB,
	file_version BIGINT NOT NULL DEFAULT 0,
	active BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	modified_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_langpacks_lookup
	ON langpacks (platform_version, active, locale);
`

// Init creates the schema.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgLangpackSchema)
	return err
}

const pgColumns = `uuid, locale, platform_version, version, COALESCE(manifest::text, ''), file_version, active, created_at, modified_at`

func (s *PostgresStore) Get(ctx context.Context, uuid string) (*LangPack, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgColumns+` FROM langpacks WHERE uuid = $1`, uuid)
	return scanPGPack(row)
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*LangPack, error) {
	query := `SELECT ` + pgColumns + ` FROM langpacks WHERE 1=1`
	var args []any
	if filter.Locale != "" {
		args = append(args, filter.Locale)
		query += fmt.Sprintf(` AND locale = $%d`, len(args))
	}
	if filter.ActiveOnly {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY locale`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var packs []*LangPack
	for rows.Next() {
		lp, err := scanPGPack(rows)
		if err != nil {
			return nil, err
		}
		packs = append(packs, lp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return packs, nil
}

func (s *PostgresStore) Publish(ctx context.Context, pack *LangPack, expectedFileVersion int64) error {
	now := time.Now().UTC()

	if expectedFileVersion == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO langpacks (uuid, locale, platform_version, version, manifest, file_version, active, created_at, modified_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			ON CONFLICT (uuid) DO UPDATE SET
				locale = EXCLUDED.locale,
				platform_version = EXCLUDED.platform_version,
				version = EXCLUDED.version,
				manifest = EXCLUDED.manifest,
				file_version = EXCLUDED.file_version,
				modified_at = EXCLUDED.modified_at
			WHERE langpacks.file_version = 0`,
			pack.UUID, pack.Locale, pack.PlatformVersion, pack.Version,
			nullableJSON(pack.Manifest), pack.FileVersion, pack.Active, now)
		if err != nil {
			return fmt.Errorf("insert langpack: %w", err)
		}
		return checkPublished(res)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE langpacks SET
			locale = $1, platform_version = $2, version = $3, manifest = $4,
			file_version = $5, modified_at = $6
		WHERE uuid = $7 AND file_version = $8`,
		pack.Locale, pack.PlatformVersion, pack.Version, nullableJSON(pack.Manifest),
		pack.FileVersion, now, pack.UUID, expectedFileVersion)
	if err != nil {
		return fmt.Errorf("update langpack: %w", err)
	}
	return checkPublished(res)
}

func (s *PostgresStore) SetActive(ctx context.Context, uuid string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE langpacks SET active = $1, modified_at = $2 WHERE uuid = $3`,
		active, time.Now().UTC(), uuid)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, uuid string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM langpacks WHERE uuid = $1`, uuid)
	if err != nil {
		return fmt.Errorf("delete langpack: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPGPack(row rowScanner) (*LangPack, error) {
	var (
		lp       LangPack
		manifest string
	)
	err := row.Scan(&lp.UUID, &lp.Locale, &lp.PlatformVersion, &lp.Version,
		&manifest, &lp.FileVersion, &lp.Active, &lp.CreatedAt, &lp.ModifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if manifest != "" {
		lp.Manifest = []byte(manifest)
	}
	return &lp, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
