package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"hs-go/internal/model"
)

// CreateService creates folder and file nodes under a parent folder.
type CreateService struct {
	userID   int64
	repo     NodeRepository
	fsys     FileSystem
	paths    *PathManager
	versions Versioner
	logger   Logger
	clock    Clock
}

// NewCreateService creates a CreateService for one user.
func NewCreateService(userID int64, repo NodeRepository, fsys FileSystem, paths *PathManager, versions Versioner, logger Logger, clock Clock) *CreateService {
	return &CreateService{
		userID:   userID,
		repo:     repo,
		fsys:     fsys,
		paths:    paths,
		versions: versions,
		logger:   logger,
		clock:    clock,
	}
}

// CreateFolder creates the directory first and then the catalog row. If the
// row cannot be inserted the directory is left behind and an
// *OrphanedResourceError is returned; it is not retried.
func (s *CreateService) CreateFolder(ctx context.Context, parentID int64, name string) (int64, error) {
	parent, err := resolveFolder(ctx, s.repo, parentID)
	if err != nil {
		return 0, err
	}
	if err := ValidateTitle(name, parent.IsRoot()); err != nil {
		return 0, err
	}

	existing, err := s.repo.GetNodeByTitle(ctx, parent.ID, name)
	if err != nil {
		return 0, fmt.Errorf("checking for %q: %w", name, err)
	}
	if existing != nil {
		return 0, &ConflictError{ParentID: parent.ID, Title: name, Reason: "a " + existing.Type.String() + " with this title exists"}
	}

	node := &model.Node{
		UserID:         s.userID,
		Title:          name,
		ParentID:       parent.ID,
		Type:           model.Folder,
		FilesystemPath: s.paths.ChildPath(parent, name),
		MimeType:       model.FolderMimeType,
		ModifiedAt:     s.clock.Now(),
		Version:        1,
	}
	abs := s.paths.AbsolutePath(s.userID, node)

	if err := s.fsys.CreateDirectory(ctx, abs); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, &ConflictError{ParentID: parent.ID, Title: name, Reason: "directory already exists on disk"}
		}
		return 0, fmt.Errorf("creating folder %q: %w", name, err)
	}

	id, err := s.repo.AddNode(ctx, node)
	if err != nil {
		s.logger.Error("folder created on disk but not in catalog", "path", abs, "error", err)
		return 0, &OrphanedResourceError{Path: abs, Err: err}
	}

	s.logger.Info("folder created", "id", id, "path", node.FilesystemPath)
	return id, nil
}

// CreateFile stores r under parent as name. If a file with that title
// exists its current content is versioned and then overwritten in place,
// and the existing node's id is returned. The stream is never buffered
// beyond the few KiB used for content type detection.
func (s *CreateService) CreateFile(ctx context.Context, parentID int64, name string, r io.Reader) (int64, error) {
	parent, err := resolveFolder(ctx, s.repo, parentID)
	if err != nil {
		return 0, err
	}
	if err := ValidateTitle(name, parent.IsRoot()); err != nil {
		return 0, err
	}

	existing, err := s.repo.GetNodeByTitle(ctx, parent.ID, name)
	if err != nil {
		return 0, fmt.Errorf("checking for %q: %w", name, err)
	}
	if existing != nil && existing.IsFolder() {
		return 0, &ConflictError{ParentID: parent.ID, Title: name, Reason: "a file cannot replace a folder"}
	}

	mime, body, err := sniffContentType(r)
	if err != nil {
		return 0, err
	}

	if existing != nil {
		return s.overwriteFile(ctx, existing, mime, body)
	}

	node := &model.Node{
		UserID:         s.userID,
		Title:          name,
		ParentID:       parent.ID,
		Type:           model.File,
		FilesystemPath: s.paths.ChildPath(parent, name),
		MimeType:       mime,
		Version:        1,
	}
	abs := s.paths.AbsolutePath(s.userID, node)

	size, err := s.fsys.CreateFileFromStream(ctx, abs, body)
	if err != nil {
		return 0, fmt.Errorf("writing %q: %w", name, err)
	}
	node.Size = size
	node.ModifiedAt = s.clock.Now()

	id, err := s.repo.AddNode(ctx, node)
	if err != nil {
		s.logger.Error("file written but not cataloged", "path", abs, "error", err)
		return 0, &OrphanedResourceError{Path: abs, Err: err}
	}

	s.logger.Info("file created", "id", id, "path", node.FilesystemPath, "size", size)
	return id, nil
}

func (s *CreateService) overwriteFile(ctx context.Context, existing *model.Node, mime string, body io.Reader) (int64, error) {
	v, err := s.versions.VersionFileNode(ctx, existing)
	if err != nil {
		return 0, fmt.Errorf("versioning %q before overwrite: %w", existing.Title, err)
	}

	size, err := s.fsys.CreateFileFromStream(ctx, s.paths.AbsolutePath(s.userID, existing), body)
	if err != nil {
		discardSnapshot(ctx, s.versions, s.logger, v)
		return 0, fmt.Errorf("overwriting %q: %w", existing.Title, err)
	}

	updated := *existing
	updated.MimeType = mime
	updated.Size = size
	updated.ModifiedAt = s.clock.Now()
	if err := s.repo.UpdateNode(ctx, existing, &updated); err != nil {
		return 0, fmt.Errorf("updating %q: %w", existing.Title, err)
	}

	s.logger.Info("file overwritten", "id", existing.ID, "version", existing.Version+1, "size", size)
	return existing.ID, nil
}

// discardSnapshot rolls back the snapshot of an overwrite that failed
// before the live content changed. A failure is only logged: the caller
// reports the overwrite error.
func discardSnapshot(ctx context.Context, versions Versioner, logger Logger, v *model.Version) {
	if err := versions.DiscardVersion(context.WithoutCancel(ctx), v); err != nil {
		logger.Warn("discarding snapshot of failed overwrite", "node_id", v.NodeID, "version", v.Version, "error", err)
	}
}

// resolveFolder returns the folder addressed by id, where model.RootID
// stands for the user's root.
func resolveFolder(ctx context.Context, repo NodeRepository, id int64) (*model.Node, error) {
	var (
		node *model.Node
		err  error
	)
	if id == model.RootID {
		node, err = repo.GetRootNode(ctx)
	} else {
		node, err = repo.GetNode(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if !node.IsFolder() {
		return nil, fmt.Errorf("%w: node %d is not a folder", ErrInvalidOperation, id)
	}
	return node, nil
}
