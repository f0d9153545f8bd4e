// Package livetv manages the pool of upstream live-TV credentials. Accounts
// are a consumable resource: an authentication failure burns one, and the
// rotation controller moves on to the next until the pool runs dry.
package livetv

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/alvarorichard/Gostream/internal/models"
)

// CredentialStore is the durable persistence boundary for credentials. A
// nil credential with a nil error means the pool has nothing left to issue.
type CredentialStore interface {
	Issue(ctx context.Context, excludeIDs []string) (*models.Credential, error)
	Invalidate(ctx context.Context, id string) error
}

const (
	busyTimeout  = 5000 // milliseconds
	maxOpenConns = 5
	maxIdleConns = 2
)

// SQLiteStore keeps credentials in a local sqlite database.
type SQLiteStore struct {
	db           *sql.DB
	insertPS     *sql.Stmt
	invalidatePS *sql.Stmt
	countPS      *sql.Stmt
}

// NewSQLiteStore opens (creating if needed) the credential database at
// dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}

	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d",
		filepath.ToSlash(dbPath), busyTimeout,
	)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open credential database")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	schema := `CREATE TABLE IF NOT EXISTS credentials (
		id            TEXT    NOT NULL PRIMARY KEY,
		auth_material TEXT    NOT NULL,
		is_invalid    INTEGER NOT NULL DEFAULT 0,
		added_at      INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "schema creation failed")
	}

	insert, err := db.Prepare(`INSERT INTO credentials (id, auth_material, is_invalid, added_at)
		VALUES (?,?,0,?)
		ON CONFLICT(id) DO UPDATE SET auth_material = excluded.auth_material, is_invalid = 0`)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "insert preparation failed")
	}
	invalidate, err := db.Prepare(`UPDATE credentials SET is_invalid = 1 WHERE id = ?`)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "invalidate preparation failed")
	}
	count, err := db.Prepare(`SELECT COUNT(*) FROM credentials WHERE is_invalid = 0`)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "count preparation failed")
	}

	return &SQLiteStore{
		db:           db,
		insertPS:     insert,
		invalidatePS: invalidate,
		countPS:      count,
	}, nil
}

// Add inserts or refreshes a credential in the pool.
func (s *SQLiteStore) Add(ctx context.Context, cred models.Credential) error {
	_, err := s.insertPS.ExecContext(ctx, cred.ID, cred.AuthMaterial, time.Now().Unix())
	return errors.Wrap(err, "failed to store credential")
}

// Issue returns the oldest valid credential whose ID is not excluded, or
// nil when none remain. The excluded list is small (one entry per failed
// attempt in a session), so the query is built in place.
func (s *SQLiteStore) Issue(ctx context.Context, excludeIDs []string) (*models.Credential, error) {
	query := `SELECT id, auth_material FROM credentials WHERE is_invalid = 0`
	args := make([]interface{}, 0, len(excludeIDs))
	if len(excludeIDs) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(",?", len(excludeIDs)-1) + `)`
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY added_at, id LIMIT 1`

	var cred models.Credential
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&cred.ID, &cred.AuthMaterial)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue credential")
	}
	return &cred, nil
}

// Invalidate marks a credential dead so no session ever issues it again.
func (s *SQLiteStore) Invalidate(ctx context.Context, id string) error {
	_, err := s.invalidatePS.ExecContext(ctx, id)
	return errors.Wrap(err, "failed to invalidate credential")
}

// Remaining reports how many valid credentials the pool still holds.
func (s *SQLiteStore) Remaining(ctx context.Context) (int, error) {
	var n int
	if err := s.countPS.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count credentials")
	}
	return n, nil
}

// Close releases the prepared statements and the database handle.
func (s *SQLiteStore) Close() error {
	_ = s.insertPS.Close()
	_ = s.invalidatePS.Close()
	_ = s.countPS.Close()
	return s.db.Close()
}
