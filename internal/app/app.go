package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"hs-go/internal/config"
	"hs-go/internal/database"
	"hs-go/internal/files"
	"hs-go/internal/fs"
	"hs-go/internal/model"
)

// HSApp is the application layer between the CLI and files.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept slash-separated node paths, and manages the catalog lifecycle
// on Close.
type HSApp struct {
	cfg      *config.Config
	db       *database.SQLiteDatabase
	fsys     files.FileSystem
	paths    *files.PathManager
	logger   *slog.Logger
	logFile  *os.File
	userName string
	user     *model.User
	service  *files.Service
	op       *Operation
}

// NewHSApp creates a fully wired HSApp from the given config.
// operation identifies the CLI command being run (e.g. "Mkdir", "Move").
// userName selects the catalog user; empty falls back to cfg.User.
// The caller must call Close when done.
func NewHSApp(cfg *config.Config, operation, userName string, verbose bool) (*HSApp, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	fsys, root, err := fs.NewFileSystemFromConfig(cfg.Storage)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating storage: %w", err)
	}

	level := parseLevel(cfg.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, level)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	if userName == "" {
		userName = cfg.User
	}

	return &HSApp{
		cfg:      cfg,
		db:       db,
		fsys:     fsys,
		paths:    files.NewPathManager(root, files.UUIDGenerator{}),
		logger:   logger,
		logFile:  logFile,
		userName: userName,
		op:       NewOperation(operation, ""),
	}, nil
}

// Config returns the configuration the app was built from.
func (a *HSApp) Config() *config.Config { return a.cfg }

// Service returns the file service of the selected user, resolving the user
// on first use.
func (a *HSApp) Service(ctx context.Context) (*files.Service, error) {
	if a.service != nil {
		return a.service, nil
	}
	if a.userName == "" {
		return nil, fmt.Errorf("no user selected: pass --user or set user in the config")
	}
	u, err := a.db.FindUserByName(ctx, a.userName)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %q: %w", a.userName, files.ErrNotFound)
	}

	logger := &slogAdapter{l: a.logger.With("user", u.Name)}
	a.user = u
	a.service = files.NewService(u.ID, a.db.Nodes(u.ID), a.fsys, a.paths, logger, files.RealClock{}, files.UUIDGenerator{})
	return a.service, nil
}

// persistOperation saves the operation to the journal, giving it an id.
// This should only be called for catalog-mutating commands.
func (a *HSApp) persistOperation(ctx context.Context, userID int64, parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	dbOp, err := a.db.CreateOperation(ctx, userID, a.op.Operation, parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// mutate journals the operation and runs fn against the user's service.
// A failure of fn marks the operation as failed.
func (a *HSApp) mutate(ctx context.Context, parameters string, fn func(*files.Service) error) error {
	svc, err := a.Service(ctx)
	if err != nil {
		return err
	}
	if err := a.persistOperation(ctx, svc.UserID(), parameters); err != nil {
		return err
	}
	if err := fn(svc); err != nil {
		a.op.Fail()
		return err
	}
	return nil
}

// cleanPath normalizes a node path: no leading or trailing slash, and ""
// for the root folder.
func cleanPath(p string) string {
	p = path.Clean("/" + strings.TrimSpace(p))
	return strings.TrimPrefix(p, "/")
}

// resolve returns the live node at the given path.
func (a *HSApp) resolve(ctx context.Context, svc *files.Service, p string) (*model.Node, error) {
	p = cleanPath(p)
	if p == "" {
		return svc.GetNode(ctx, model.RootID)
	}
	n, err := a.db.Nodes(svc.UserID()).GetNodeByPath(ctx, p)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%q: %w", p, files.ErrNotFound)
	}
	return n, nil
}

func (a *HSApp) resolveAll(ctx context.Context, svc *files.Service, paths []string) ([]int64, error) {
	ids := make([]int64, 0, len(paths))
	for _, p := range paths {
		n, err := a.resolve(ctx, svc, p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, n.ID)
	}
	return ids, nil
}

// splitTarget resolves the parent folder of p and returns it with the last
// path element.
func (a *HSApp) splitTarget(ctx context.Context, svc *files.Service, p string) (*model.Node, string, error) {
	p = cleanPath(p)
	if p == "" {
		return nil, "", fmt.Errorf("%w: a name is required", files.ErrInvalidName)
	}
	dir, name := path.Split(p)
	parent, err := a.resolve(ctx, svc, dir)
	if err != nil {
		return nil, "", err
	}
	return parent, name, nil
}

// Mkdir creates a folder at the given path. The parent must exist.
func (a *HSApp) Mkdir(ctx context.Context, p string) (int64, error) {
	var id int64
	err := a.mutate(ctx, cleanPath(p), func(svc *files.Service) error {
		parent, name, err := a.splitTarget(ctx, svc, p)
		if err != nil {
			return err
		}
		id, err = svc.CreateFolder(ctx, parent.ID, name)
		return err
	})
	return id, err
}

// Put stores r as the file at the given path, versioning an existing file.
func (a *HSApp) Put(ctx context.Context, p string, r io.Reader) (int64, error) {
	var id int64
	err := a.mutate(ctx, cleanPath(p), func(svc *files.Service) error {
		parent, name, err := a.splitTarget(ctx, svc, p)
		if err != nil {
			return err
		}
		id, err = svc.CreateFile(ctx, parent.ID, name, r)
		return err
	})
	return id, err
}

// Get writes the content of the file at p to w. A positive version reads a
// stored version instead of the current content.
func (a *HSApp) Get(ctx context.Context, p string, version int64, w io.Writer) (int64, error) {
	svc, err := a.Service(ctx)
	if err != nil {
		return 0, err
	}
	n, err := a.resolve(ctx, svc, p)
	if err != nil {
		return 0, err
	}

	var rc io.ReadCloser
	if version > 0 {
		rc, err = svc.OpenVersion(ctx, n.ID, version)
	} else {
		rc, _, err = svc.Open(ctx, n.ID)
	}
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return io.Copy(w, rc)
}

// Stat returns the live node at p.
func (a *HSApp) Stat(ctx context.Context, p string) (*model.Node, error) {
	svc, err := a.Service(ctx)
	if err != nil {
		return nil, err
	}
	return a.resolve(ctx, svc, p)
}

// ListOptions builds listing options from CLI values, falling back to the
// configured defaults.
func (a *HSApp) ListOptions(sort string, page, pageSize int) (model.ListOptions, error) {
	if sort == "" {
		sort = a.cfg.Listing.DefaultSort
	}
	sorting, err := model.ParseSorting(sort)
	if err != nil {
		return model.ListOptions{}, fmt.Errorf("%w: %v", files.ErrInvalidOperation, err)
	}
	if pageSize < 0 {
		pageSize = a.cfg.Listing.DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	return model.ListOptions{Sort: sorting, Page: page, PageSize: pageSize}, nil
}

// List returns one page of the folder at p.
func (a *HSApp) List(ctx context.Context, p string, opts model.ListOptions) (*model.Page, error) {
	svc, err := a.Service(ctx)
	if err != nil {
		return nil, err
	}
	n, err := a.resolve(ctx, svc, p)
	if err != nil {
		return nil, err
	}
	return svc.ListChildren(ctx, n.ID, opts)
}

// TreeEntry is one line of a recursive listing.
type TreeEntry struct {
	Depth int
	Node  *model.DisplayNode
}

// Tree lists the subtree below the folder at p, depth first.
func (a *HSApp) Tree(ctx context.Context, p string) ([]TreeEntry, error) {
	svc, err := a.Service(ctx)
	if err != nil {
		return nil, err
	}
	n, err := a.resolve(ctx, svc, p)
	if err != nil {
		return nil, err
	}

	var out []TreeEntry
	var walk func(id int64, depth int) error
	walk = func(id int64, depth int) error {
		page, err := svc.ListChildren(ctx, id, model.ListOptions{Sort: model.DefaultSorting})
		if err != nil {
			return err
		}
		for _, child := range page.Items {
			out = append(out, TreeEntry{Depth: depth, Node: child})
			if child.Type == model.Folder {
				if err := walk(child.ID, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(n.ID, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// Copy copies the nodes at srcs into the folder at dest.
func (a *HSApp) Copy(ctx context.Context, srcs []string, dest string) error {
	return a.moveOrCopy(ctx, srcs, dest, true)
}

// Move moves the nodes at srcs into the folder at dest.
func (a *HSApp) Move(ctx context.Context, srcs []string, dest string) error {
	return a.moveOrCopy(ctx, srcs, dest, false)
}

func (a *HSApp) moveOrCopy(ctx context.Context, srcs []string, dest string, keepOld bool) error {
	params := strings.Join(srcs, ",") + " -> " + cleanPath(dest)
	return a.mutate(ctx, params, func(svc *files.Service) error {
		ids, err := a.resolveAll(ctx, svc, srcs)
		if err != nil {
			return err
		}
		d, err := a.resolve(ctx, svc, dest)
		if err != nil {
			return err
		}
		return svc.MoveOrCopy(ctx, ids, d.ID, keepOld)
	})
}

// Rename changes the title of the node at p.
func (a *HSApp) Rename(ctx context.Context, p, title string) error {
	return a.mutate(ctx, cleanPath(p)+" -> "+title, func(svc *files.Service) error {
		n, err := a.resolve(ctx, svc, p)
		if err != nil {
			return err
		}
		return svc.Rename(ctx, n.ID, title)
	})
}

// Remove moves the nodes at paths to the trash, or deletes them outright
// when permanent is set.
func (a *HSApp) Remove(ctx context.Context, paths []string, permanent bool) error {
	return a.mutate(ctx, strings.Join(paths, ","), func(svc *files.Service) error {
		ids, err := a.resolveAll(ctx, svc, paths)
		if err != nil {
			return err
		}
		if !permanent {
			return svc.TrashNodes(ctx, ids)
		}
		var errs []error
		for _, id := range ids {
			if err := svc.Delete(ctx, id); err != nil && !errors.Is(err, files.ErrNotFound) {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// ListTrash returns the quarantined nodes of the user.
func (a *HSApp) ListTrash(ctx context.Context) ([]*model.TrashNode, error) {
	svc, err := a.Service(ctx)
	if err != nil {
		return nil, err
	}
	return svc.ListTrash(ctx)
}

// PurgeTrash permanently removes one trash entry.
func (a *HSApp) PurgeTrash(ctx context.Context, id int64) error {
	return a.mutate(ctx, fmt.Sprintf("%d", id), func(svc *files.Service) error {
		return svc.PurgeTrash(ctx, id)
	})
}

// EmptyTrash purges every trash entry of the user.
func (a *HSApp) EmptyTrash(ctx context.Context) (int, error) {
	var n int
	err := a.mutate(ctx, "", func(svc *files.Service) error {
		var err error
		n, err = svc.EmptyTrash(ctx)
		return err
	})
	return n, err
}

// RestoreTrash restores one trash entry.
func (a *HSApp) RestoreTrash(ctx context.Context, id int64) error {
	return a.mutate(ctx, fmt.Sprintf("%d", id), func(svc *files.Service) error {
		return svc.Restore(ctx, id)
	})
}

// Versions lists the stored versions of the file at p.
func (a *HSApp) Versions(ctx context.Context, p string) ([]model.VersionRef, error) {
	svc, err := a.Service(ctx)
	if err != nil {
		return nil, err
	}
	n, err := a.resolve(ctx, svc, p)
	if err != nil {
		return nil, err
	}
	return svc.GetVersions(ctx, n.ID)
}

// RestoreVersion makes the given stored version the current content of
// the file at p.
func (a *HSApp) RestoreVersion(ctx context.Context, p string, version int64) error {
	return a.mutate(ctx, fmt.Sprintf("%s@%d", cleanPath(p), version), func(svc *files.Service) error {
		n, err := a.resolve(ctx, svc, p)
		if err != nil {
			return err
		}
		return svc.RestoreVersion(ctx, n.ID, version)
	})
}

// Ancestors returns the breadcrumb of the node at p.
func (a *HSApp) Ancestors(ctx context.Context, p string) ([]model.ParentRef, error) {
	svc, err := a.Service(ctx)
	if err != nil {
		return nil, err
	}
	n, err := a.resolve(ctx, svc, p)
	if err != nil {
		return nil, err
	}
	if n.IsRoot() {
		return svc.GetAncestors(ctx, model.RootID)
	}
	return svc.GetAncestors(ctx, n.ID)
}

// SetFavorite flags or unflags the node at p as a favorite.
func (a *HSApp) SetFavorite(ctx context.Context, p string, favorite bool) error {
	return a.mutate(ctx, cleanPath(p), func(svc *files.Service) error {
		n, err := a.resolve(ctx, svc, p)
		if err != nil {
			return err
		}
		if favorite {
			return svc.SetFavorite(ctx, n.ID)
		}
		return svc.UnsetFavorite(ctx, n.ID)
	})
}

// CreateUser adds a user to the catalog and provisions its storage tree.
func (a *HSApp) CreateUser(ctx context.Context, name string) (*model.User, error) {
	if err := a.persistOperation(ctx, 0, name); err != nil {
		return nil, err
	}
	u, err := a.db.CreateUser(ctx, name, func(id int64) error {
		return a.paths.Provision(ctx, a.fsys, id)
	})
	if err != nil {
		a.op.Fail()
		return nil, err
	}
	a.logger.Info("user created", "user", name, "id", u.ID, "root", a.paths.UserRoot(u.ID))
	return u, nil
}

// ListUsers returns every user in the catalog.
func (a *HSApp) ListUsers(ctx context.Context) ([]*model.User, error) {
	return a.db.ListUsers(ctx)
}

// History returns the most recent journaled operations.
func (a *HSApp) History(ctx context.Context, limit int) ([]*model.Operation, error) {
	return a.db.ListOperations(ctx, limit)
}

// Export writes a consistent catalog snapshot to w, encrypted to recipient
// when one is given.
func (a *HSApp) Export(ctx context.Context, w io.Writer, recipient string) error {
	return a.db.Export(ctx, w, recipient)
}

// Schema returns the catalog DDL.
func (a *HSApp) Schema(ctx context.Context) (string, error) {
	return a.db.Schema(ctx)
}

// Close finalizes the operation and closes all resources.
func (a *HSApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(context.Background(), a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
