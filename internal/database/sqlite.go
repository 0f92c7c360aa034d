package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/mattn/go-sqlite3"

	"hs-go/internal/database/migrations"
	"hs-go/internal/files"
	"hs-go/internal/model"
)

// DefaultBusyTimeout is how long a connection waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// SQLiteDatabase is the catalog store. Node access goes through per-user
// repositories returned by Nodes.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the catalog at path, or an in-memory catalog for
// ":memory:". The schema is not touched; call Migrate.
func NewSQLiteDatabase(path string, busyTimeout time.Duration) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path, busyTimeout)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already configured connection.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens a SQLite connection pool with foreign keys enforced.
//
// The pool holds a single connection. Writers serialize on it, an in-memory
// database stays one database, and the per-connection PRAGMAs below apply
// to every statement. Code holding a transaction must not issue statements
// outside it, or it will wait on itself.
func OpenConnection(path string, busyTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Nodes returns the node repository scoped to one user.
func (s *SQLiteDatabase) Nodes(userID int64) *NodeRepository {
	return &NodeRepository{db: s.db, userID: userID}
}

// User operations

// CreateUser inserts a user and its root folder in one transaction, then
// calls provision with the new id. The transaction commits only if
// provisioning succeeds, so a user never exists without its storage.
func (s *SQLiteDatabase) CreateUser(ctx context.Context, name string, provision func(userID int64) error) (*model.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("starting transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, "INSERT INTO users (name, created_at) VALUES (?, ?)", name, now)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) {
			return nil, &files.ConflictError{Title: name, Reason: "user already exists"}
		}
		return nil, storeErr("inserting user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storeErr("reading user id", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO file_nodes (user_id, title, parent_id, node_type, filesystem_path, mime_type, modified_at, node_size, node_version)
		VALUES (?, '', NULL, ?, '', ?, ?, 0, 1)`,
		id, model.Folder, model.FolderMimeType, now)
	if err != nil {
		return nil, storeErr("inserting root folder", err)
	}

	if provision != nil {
		if err := provision(id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("committing user", err)
	}
	return &model.User{ID: id, Name: name, CreatedAt: now}, nil
}

// FindUserByName returns nil, nil if no user has the name.
func (s *SQLiteDatabase) FindUserByName(ctx context.Context, name string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx, "SELECT id, name, created_at FROM users WHERE name = ?", name).
		Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeErr("finding user", err)
	}
	return &u, nil
}

func (s *SQLiteDatabase) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, storeErr("listing users", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt); err != nil {
			return nil, storeErr("scanning user", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("listing users", err)
	}
	return users, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate brings the schema to the latest version.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrationStatus reports the current and latest schema versions.
func (s *SQLiteDatabase) MigrationStatus() (*migrations.Status, error) {
	return migrations.ReadStatus(s.db)
}

// BackupTo writes a consistent copy of the catalog to destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(ctx context.Context, destPath string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Export streams a consistent copy of the catalog to w. If recipient is an
// age X25519 public key the copy is encrypted to it.
func (s *SQLiteDatabase) Export(ctx context.Context, w io.Writer, recipient string) error {
	var r age.Recipient
	if recipient != "" {
		x, err := age.ParseX25519Recipient(recipient)
		if err != nil {
			return fmt.Errorf("parsing recipient: %w", err)
		}
		r = x
	}

	tmpDir, err := os.MkdirTemp("", "hs-export-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for export: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "catalog.db")
	if err := s.BackupTo(ctx, snapshot); err != nil {
		return err
	}
	f, err := os.Open(snapshot)
	if err != nil {
		return fmt.Errorf("opening catalog snapshot: %w", err)
	}
	defer f.Close()

	if r == nil {
		if _, err := io.Copy(w, f); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		return nil
	}

	enc, err := age.Encrypt(w, r)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(enc, f); err != nil {
		return fmt.Errorf("writing encrypted export: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted export: %w", err)
	}
	return nil
}

// Schema returns the CREATE statements of the catalog, tables first. SQLite
// internals and the migration bookkeeping table are left out.
func (s *SQLiteDatabase) Schema(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY
		  CASE type
		    WHEN 'table' THEN 1
		    WHEN 'index' THEN 2
		  END,
		  name`)
	if err != nil {
		return "", storeErr("reading schema", err)
	}
	defer rows.Close()

	var schema strings.Builder
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", storeErr("reading schema", err)
		}
		schema.WriteString(stmt)
		schema.WriteString("\n\n")
	}
	if err := rows.Err(); err != nil {
		return "", storeErr("reading schema", err)
	}
	return schema.String(), nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func storeErr(op string, err error) error {
	return &files.StoreError{Op: op, Err: err}
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == code
}
