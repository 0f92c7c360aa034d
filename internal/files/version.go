package files

import (
	"context"
	"fmt"

	"hs-go/internal/model"
)

// Versioner snapshots a file node's current content before it is overwritten.
// DiscardVersion undoes a snapshot whose overwrite failed before the live
// content changed, so the same version can be snapshotted again on retry.
type Versioner interface {
	VersionFileNode(ctx context.Context, node *model.Node) (*model.Version, error)
	DiscardVersion(ctx context.Context, v *model.Version) error
}

// VersionService stores snapshots under the user's versions area.
type VersionService struct {
	userID int64
	repo   NodeRepository
	fsys   FileSystem
	paths  *PathManager
	logger Logger
	clock  Clock
	ids    IDGenerator
}

// NewVersionService creates a VersionService for one user.
func NewVersionService(userID int64, repo NodeRepository, fsys FileSystem, paths *PathManager, logger Logger, clock Clock, ids IDGenerator) *VersionService {
	return &VersionService{
		userID: userID,
		repo:   repo,
		fsys:   fsys,
		paths:  paths,
		logger: logger,
		clock:  clock,
		ids:    ids,
	}
}

// VersionFileNode copies the node's live content under a fresh opaque name
// and records it with the node's current version number. It returns only
// after both steps are durable, so callers may then overwrite the content.
func (s *VersionService) VersionFileNode(ctx context.Context, node *model.Node) (*model.Version, error) {
	if node.IsFolder() {
		return nil, fmt.Errorf("%w: cannot version folder %d", ErrInvalidOperation, node.ID)
	}

	name := s.ids.New()
	dst := s.paths.VersionPath(s.userID, name)
	if err := s.fsys.Copy(ctx, s.paths.AbsolutePath(s.userID, node), dst); err != nil {
		return nil, fmt.Errorf("snapshotting node %d: %w", node.ID, err)
	}

	v := &model.Version{
		UserID:     s.userID,
		NodeID:     node.ID,
		Version:    node.Version,
		CreatedAt:  s.clock.Now(),
		ModifiedAt: node.ModifiedAt,
		Size:       node.Size,
		FileName:   name,
	}
	id, err := s.repo.AddVersion(ctx, v)
	if err != nil {
		if rmErr := s.fsys.RemoveFile(ctx, dst); rmErr != nil {
			s.logger.Warn("removing unrecorded snapshot failed", "path", dst, "error", rmErr)
			return nil, &OrphanedResourceError{Path: dst, Err: err}
		}
		return nil, fmt.Errorf("recording version of node %d: %w", node.ID, err)
	}
	v.ID = id

	s.logger.Info("version created", "node_id", node.ID, "version", node.Version, "file", name)
	return v, nil
}

// DiscardVersion removes the record of v and then its snapshot file. A
// snapshot that cannot be removed after its record is gone is reported as
// orphaned.
func (s *VersionService) DiscardVersion(ctx context.Context, v *model.Version) error {
	if err := s.repo.DeleteVersion(ctx, v.ID); err != nil {
		return fmt.Errorf("discarding version %d of node %d: %w", v.Version, v.NodeID, err)
	}
	path := s.paths.VersionPath(s.userID, v.FileName)
	if err := s.fsys.RemoveFile(ctx, path); err != nil {
		return &OrphanedResourceError{Path: path, Err: err}
	}
	s.logger.Debug("version discarded", "node_id", v.NodeID, "version", v.Version)
	return nil
}

var _ Versioner = (*VersionService)(nil)
