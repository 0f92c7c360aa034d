package files

import (
	"context"
	"fmt"
	"io"

	"hs-go/internal/model"
)

// Service is the file-node API for one user. Controllers and the CLI call
// it; it coordinates the catalog, the physical tree and version history.
type Service struct {
	userID   int64
	repo     NodeRepository
	fsys     FileSystem
	paths    *PathManager
	logger   Logger
	clock    Clock
	versions *VersionService
	creator  *CreateService
	mover    *MoveService
	trash    *TrashService
}

// NewService wires the per-user services around the given collaborators.
func NewService(userID int64, repo NodeRepository, fsys FileSystem, paths *PathManager, logger Logger, clock Clock, ids IDGenerator) *Service {
	versions := NewVersionService(userID, repo, fsys, paths, logger, clock, ids)
	return &Service{
		userID:   userID,
		repo:     repo,
		fsys:     fsys,
		paths:    paths,
		logger:   logger,
		clock:    clock,
		versions: versions,
		creator:  NewCreateService(userID, repo, fsys, paths, versions, logger, clock),
		mover:    NewMoveService(userID, repo, fsys, paths, versions, logger),
		trash:    NewTrashService(userID, repo, fsys, paths, logger, clock, ids),
	}
}

// UserID returns the owner all operations are scoped to.
func (s *Service) UserID() int64 { return s.userID }

func (s *Service) CreateFolder(ctx context.Context, parentID int64, name string) (int64, error) {
	return s.creator.CreateFolder(ctx, parentID, name)
}

func (s *Service) CreateFile(ctx context.Context, parentID int64, name string, r io.Reader) (int64, error) {
	return s.creator.CreateFile(ctx, parentID, name, r)
}

// MoveOrCopy copies the sources when keepOld is true and moves them
// otherwise. Sources applied before a failure remain applied.
func (s *Service) MoveOrCopy(ctx context.Context, sourceIDs []int64, destParentID int64, keepOld bool) error {
	return s.mover.MoveNodes(ctx, sourceIDs, destParentID, keepOld)
}

func (s *Service) MoveToTrash(ctx context.Context, id int64) error {
	return s.trash.MoveToTrash(ctx, id)
}

func (s *Service) TrashNodes(ctx context.Context, ids []int64) error {
	return s.trash.TrashNodes(ctx, ids)
}

func (s *Service) ListTrash(ctx context.Context) ([]*model.TrashNode, error) {
	return s.trash.ListTrash(ctx)
}

func (s *Service) PurgeTrash(ctx context.Context, id int64) error {
	return s.trash.PurgeTrash(ctx, id)
}

func (s *Service) EmptyTrash(ctx context.Context) (int, error) {
	return s.trash.EmptyTrash(ctx)
}

func (s *Service) Restore(ctx context.Context, id int64) error {
	return s.trash.Restore(ctx, id)
}

// Delete permanently removes a live subtree, bypassing the trash.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.trash.Delete(ctx, id)
}

// GetNode returns a live node. model.RootID returns the root folder.
func (s *Service) GetNode(ctx context.Context, id int64) (*model.Node, error) {
	if id == model.RootID {
		return s.repo.GetRootNode(ctx)
	}
	return s.repo.GetNode(ctx, id)
}

// ListChildren lists one page of a folder, folders first.
func (s *Service) ListChildren(ctx context.Context, parentID int64, opts model.ListOptions) (*model.Page, error) {
	parent, err := resolveFolder(ctx, s.repo, parentID)
	if err != nil {
		return nil, err
	}
	if opts.Sort.Column == "" {
		opts.Sort = model.DefaultSorting
	}
	if !opts.Sort.Column.Valid() {
		return nil, fmt.Errorf("%w: unknown sort column %q", ErrInvalidOperation, opts.Sort.Column)
	}
	return s.repo.ListChildren(ctx, parent.ID, opts)
}

// GetAncestors returns the breadcrumb from the top-level folder down to the
// node. The root folder has no ancestors.
func (s *Service) GetAncestors(ctx context.Context, id int64) ([]model.ParentRef, error) {
	if id == model.RootID {
		return []model.ParentRef{}, nil
	}
	nodes, err := s.repo.GetAncestors(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		if _, err := s.repo.GetNode(ctx, id); err != nil {
			return nil, err
		}
	}
	refs := make([]model.ParentRef, len(nodes))
	for i, n := range nodes {
		refs[i] = model.ParentRef{ID: n.ID, Title: n.Title}
	}
	return refs, nil
}

// GetVersions lists the stored versions of a file, oldest first.
func (s *Service) GetVersions(ctx context.Context, id int64) ([]model.VersionRef, error) {
	node, err := s.repo.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if node.IsFolder() {
		return nil, fmt.Errorf("%w: folders have no versions", ErrInvalidOperation)
	}
	versions, err := s.repo.GetVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	refs := make([]model.VersionRef, len(versions))
	for i, v := range versions {
		refs[i] = model.VersionRef{Version: v.Version, CreatedAt: v.CreatedAt, Size: v.Size}
	}
	return refs, nil
}

// Open returns the current content of a file node.
func (s *Service) Open(ctx context.Context, id int64) (io.ReadCloser, *model.Node, error) {
	node, err := s.repo.GetNode(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if node.IsFolder() {
		return nil, nil, fmt.Errorf("%w: node %d is a folder", ErrInvalidOperation, id)
	}
	rc, err := s.fsys.Open(ctx, s.paths.AbsolutePath(s.userID, node))
	if err != nil {
		return nil, nil, err
	}
	return rc, node, nil
}

// OpenVersion returns the content of one stored version of a file node.
func (s *Service) OpenVersion(ctx context.Context, id, version int64) (io.ReadCloser, error) {
	versions, err := s.repo.GetVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Version == version {
			return s.fsys.Open(ctx, s.paths.VersionPath(s.userID, v.FileName))
		}
	}
	return nil, fmt.Errorf("version %d of node %d: %w", version, id, ErrNotFound)
}

// RestoreVersion makes a stored version the current content of a file.
// The content being replaced is snapshotted first, so restoring is itself
// an overwrite: the node's version increases and no history is lost.
func (s *Service) RestoreVersion(ctx context.Context, id, version int64) error {
	node, err := s.repo.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if node.IsFolder() {
		return fmt.Errorf("%w: folders have no versions", ErrInvalidOperation)
	}
	versions, err := s.repo.GetVersions(ctx, id)
	if err != nil {
		return err
	}
	var target *model.Version
	for _, v := range versions {
		if v.Version == version {
			target = v
			break
		}
	}
	if target == nil {
		return fmt.Errorf("version %d of node %d: %w", version, id, ErrNotFound)
	}

	src := s.paths.VersionPath(s.userID, target.FileName)
	mime, err := s.versionContentType(ctx, src)
	if err != nil {
		return err
	}

	snap, err := s.versions.VersionFileNode(ctx, node)
	if err != nil {
		return fmt.Errorf("versioning %q before restore: %w", node.Title, err)
	}
	if err := s.fsys.Copy(ctx, src, s.paths.AbsolutePath(s.userID, node)); err != nil {
		discardSnapshot(ctx, s.versions, s.logger, snap)
		return fmt.Errorf("restoring version %d of %q: %w", version, node.Title, err)
	}

	updated := *node
	updated.MimeType = mime
	updated.Size = target.Size
	updated.ModifiedAt = s.clock.Now()
	if err := s.repo.UpdateNode(ctx, node, &updated); err != nil {
		return fmt.Errorf("updating %q: %w", node.Title, err)
	}

	s.logger.Info("version restored", "id", id, "restored", version, "version", node.Version+1)
	return nil
}

func (s *Service) versionContentType(ctx context.Context, path string) (string, error) {
	rc, err := s.fsys.Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	mime, _, err := sniffContentType(rc)
	if err != nil {
		return "", err
	}
	return mime, nil
}

// Rename changes a node's title. A folder's descendants are re-pathed in
// the same transaction as the physical rename.
func (s *Service) Rename(ctx context.Context, id int64, title string) error {
	node, err := s.repo.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if node.IsRoot() {
		return fmt.Errorf("%w: the root folder cannot be renamed", ErrInvalidOperation)
	}
	parent, err := s.repo.GetNode(ctx, node.ParentID)
	if err != nil {
		return fmt.Errorf("reading parent of %d: %w", id, err)
	}
	if err := ValidateTitle(title, parent.IsRoot()); err != nil {
		return err
	}
	if title == node.Title {
		return nil
	}

	existing, err := s.repo.GetNodeByTitle(ctx, parent.ID, title)
	if err != nil {
		return fmt.Errorf("checking for %q: %w", title, err)
	}
	if existing != nil {
		return &ConflictError{ParentID: parent.ID, Title: title, Reason: "a " + existing.Type.String() + " with this title exists"}
	}

	newPath := s.paths.ChildPath(parent, title)
	oldAbs := s.paths.AbsolutePath(s.userID, node)
	newAbs := s.paths.AbsolutePath(s.userID, &model.Node{FilesystemPath: newPath})
	err = s.repo.RenameNode(ctx, node, title, newPath, func() error {
		return s.fsys.Move(ctx, oldAbs, newAbs)
	})
	if err != nil {
		return fmt.Errorf("renaming node %d: %w", id, err)
	}

	s.logger.Info("node renamed", "id", id, "from", node.FilesystemPath, "to", newPath)
	return nil
}

func (s *Service) SetFavorite(ctx context.Context, id int64) error {
	if _, err := s.repo.GetNode(ctx, id); err != nil {
		return err
	}
	return s.repo.SetFavorite(ctx, id)
}

func (s *Service) UnsetFavorite(ctx context.Context, id int64) error {
	return s.repo.UnsetFavorite(ctx, id)
}
