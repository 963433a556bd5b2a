package langpack

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a database/sql-backed Store using the modernc sqlite driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wires a store on top of an open database handle and runs
// the schema migration.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (or creates) the sqlite database at path and returns a
// migrated store. Parent directories are created as needed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if !strings.Contains(path, ":memory:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir %q: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// sqlite allows a single writer; keep the pool honest.
	db.SetMaxOpenConns(1)
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS langpacks (
		uuid TEXT PRIMARY KEY,
		locale TEXT NOT NULL DEFAULT '',
		platform_version TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL DEFAULT '',
		manifest TEXT NOT NULL DEFAULT '',
		file_version INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		modified_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_langpacks_locale
		ON langpacks (platform_version, active, locale);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

const sqliteColumns = `uuid, locale, platform_version, version, manifest, file_version, active, created_at, modified_at`

func (s *SQLiteStore) Get(ctx context.Context, uuid string) (*LangPack, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM langpacks WHERE uuid = ?`, uuid)
	return scanPack(row)
}

func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]*LangPack, error) {
	query := `SELECT ` + sqliteColumns + ` FROM langpacks WHERE 1=1`
	var args []any
	if filter.Locale != "" {
		query += ` AND locale = ?`
		args = append(args, filter.Locale)
	}
	if filter.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY locale`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var packs []*LangPack
	for rows.Next() {
		lp, err := scanPack(rows)
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

func (s *SQLiteStore) Publish(ctx context.Context, pack *LangPack, expectedFileVersion int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if expectedFileVersion == 0 {
		// First publication: record may not exist yet. INSERT fails on the
		// primary key if a racer created it, which surfaces as ErrStale.
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO langpacks (uuid, locale, platform_version, version, manifest, file_version, active, created_at, modified_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (uuid) DO UPDATE SET
				locale = excluded.locale,
				platform_version = excluded.platform_version,
				version = excluded.version,
				manifest = excluded.manifest,
				file_version = excluded.file_version,
				modified_at = excluded.modified_at
			WHERE langpacks.file_version = 0`,
			pack.UUID, pack.Locale, pack.PlatformVersion, pack.Version,
			string(pack.Manifest), pack.FileVersion, boolToInt(pack.Active), now, now)
		if err != nil {
			return fmt.Errorf("insert langpack: %w", err)
		}
		return checkPublished(res)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE langpacks SET
			locale = ?, platform_version = ?, version = ?, manifest = ?,
			file_version = ?, modified_at = ?
		WHERE uuid = ? AND file_version = ?`,
		pack.Locale, pack.PlatformVersion, pack.Version, string(pack.Manifest),
		pack.FileVersion, now, pack.UUID, expectedFileVersion)
	if err != nil {
		return fmt.Errorf("update langpack: %w", err)
	}
	return checkPublished(res)
}

func (s *SQLiteStore) SetActive(ctx context.Context, uuid string, active bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE langpacks SET active = ?, modified_at = ? WHERE uuid = ?`,
		boolToInt(active), now, uuid)
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

func (s *SQLiteStore) Delete(ctx context.Context, uuid string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM langpacks WHERE uuid = ?`, uuid)
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

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPack(row rowScanner) (*LangPack, error) {
	var (
		lp       LangPack
		manifest string
		active   int
		created  string
		modified string
	)
	err := row.Scan(&lp.UUID, &lp.Locale, &lp.PlatformVersion, &lp.Version,
		&manifest, &lp.FileVersion, &active, &created, &modified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if manifest != "" {
		lp.Manifest = []byte(manifest)
	}
	lp.Active = active != 0
	lp.CreatedAt = parseTime(created)
	lp.ModifiedAt = parseTime(modified)
	return &lp, nil
}

func checkPublished(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
