package testutil

import (
	"context"
	"testing"

	"hs-go/internal/database"
	"hs-go/internal/files"
	"hs-go/internal/fs"
	"hs-go/internal/model"
)

// StorageRoot is where test environments keep user trees in memory.
const StorageRoot = "/srv/hs"

// NewTestDatabase creates a new in-memory SQLite catalog with the schema applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", 0)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// Env is a fully wired file service for one user, backed by an in-memory
// catalog and an in-memory file system.
type Env struct {
	DB      *database.SQLiteDatabase
	Repo    *database.NodeRepository
	FS      *fs.MemoryFileSystem
	Paths   *files.PathManager
	Clock   *StubClock
	IDs     *StubIDGenerator
	User    *model.User
	Service *files.Service
}

// NewEnv creates a user named "alice" with provisioned storage and returns
// the service scoped to it.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	env := &Env{
		DB:    NewTestDatabase(t),
		FS:    fs.NewMemoryFileSystem(StorageRoot),
		Clock: FixedClock(),
		IDs:   NewStubIDGenerator(),
	}
	env.Paths = files.NewPathManager(StorageRoot, env.IDs)
	env.User = env.AddUser(t, "alice")
	env.Repo = env.DB.Nodes(env.User.ID)
	env.Service = files.NewService(env.User.ID, env.Repo, env.FS, env.Paths, files.NewNopLogger(), env.Clock, env.IDs)
	return env
}

// AddUser creates another user in the same catalog and storage root.
func (e *Env) AddUser(t *testing.T, name string) *model.User {
	t.Helper()

	ctx := context.Background()
	user, err := e.DB.CreateUser(ctx, name, func(id int64) error {
		return e.Paths.Provision(ctx, e.FS, id)
	})
	if err != nil {
		t.Fatalf("failed to create user %q: %v", name, err)
	}
	return user
}

// Abs returns the absolute path of a node path relative to the user root.
func (e *Env) Abs(rel string) string {
	return e.Paths.AbsolutePath(e.User.ID, &model.Node{FilesystemPath: rel})
}
