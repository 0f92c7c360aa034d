package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"hs-go/internal/model"
)

// MoveService relocates or duplicates node subtrees between folders.
type MoveService struct {
	userID   int64
	repo     NodeRepository
	fsys     FileSystem
	paths    *PathManager
	versions Versioner
	logger   Logger
}

// NewMoveService creates a MoveService for one user.
func NewMoveService(userID int64, repo NodeRepository, fsys FileSystem, paths *PathManager, versions Versioner, logger Logger) *MoveService {
	return &MoveService{
		userID:   userID,
		repo:     repo,
		fsys:     fsys,
		paths:    paths,
		versions: versions,
		logger:   logger,
	}
}

// moveFrame is one unit of work in a subtree traversal. An exit frame is
// visited after all of the folder's children and removes the emptied source.
type moveFrame struct {
	node *model.Node
	dest *model.Node
	exit bool
}

// MoveNodes moves (keepOld=false) or copies (keepOld=true) each source into
// the destination folder. Folders are merged into same-titled destination
// folders; files overwrite same-titled destination files after versioning
// them. A kind mismatch is a conflict and is never auto-renamed.
//
// Each node is applied on its own. The first failure stops the call and is
// returned as a *MoveError; everything applied before it stays applied.
func (s *MoveService) MoveNodes(ctx context.Context, sourceIDs []int64, destParentID int64, keepOld bool) error {
	dest, err := resolveFolder(ctx, s.repo, destParentID)
	if err != nil {
		return fmt.Errorf("resolving destination: %w", err)
	}

	applied := make([]int64, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		if err := s.moveTree(ctx, id, dest, keepOld); err != nil {
			s.logger.Error("move stopped", "source_id", id, "dest_id", dest.ID, "keep_old", keepOld, "applied", len(applied), "error", err)
			return &MoveError{SourceID: id, Applied: applied, Err: err}
		}
		applied = append(applied, id)
	}

	s.logger.Info("nodes relocated", "count", len(applied), "dest_id", dest.ID, "keep_old", keepOld)
	return nil
}

func (s *MoveService) moveTree(ctx context.Context, id int64, dest *model.Node, keepOld bool) error {
	source, err := s.repo.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if source.IsRoot() {
		return fmt.Errorf("%w: the root folder cannot be moved", ErrInvalidOperation)
	}
	if source.ParentID == dest.ID {
		if !keepOld {
			return nil
		}
		return &ConflictError{ParentID: dest.ID, Title: source.Title, Reason: "cannot copy a node onto itself"}
	}
	if source.IsFolder() {
		if err := s.checkNotInside(ctx, source, dest); err != nil {
			return err
		}
	}

	stack := []moveFrame{{node: source, dest: dest}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch {
		case f.exit:
			if err := s.removeSourceFolder(ctx, f.node); err != nil {
				return err
			}
		case f.node.IsFolder():
			target, err := s.resolveDestFolder(ctx, f.node, f.dest)
			if err != nil {
				return err
			}
			children, err := s.repo.GetChildren(ctx, f.node.ID)
			if err != nil {
				return fmt.Errorf("listing children of %d: %w", f.node.ID, err)
			}
			if !keepOld {
				stack = append(stack, moveFrame{node: f.node, exit: true})
			}
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, moveFrame{node: children[i], dest: target})
			}
		default:
			if err := s.relocateFile(ctx, f.node, f.dest, keepOld); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkNotInside rejects destinations inside the source folder's subtree.
func (s *MoveService) checkNotInside(ctx context.Context, source, dest *model.Node) error {
	ancestors, err := s.repo.GetAncestors(ctx, dest.ID)
	if err != nil {
		return fmt.Errorf("reading ancestors of %d: %w", dest.ID, err)
	}
	for _, a := range ancestors {
		if a.ID == source.ID {
			return fmt.Errorf("%w: folder %d cannot be placed inside itself", ErrInvalidOperation, source.ID)
		}
	}
	return nil
}

// resolveDestFolder returns the folder under parent titled like src,
// creating it if needed.
func (s *MoveService) resolveDestFolder(ctx context.Context, src, parent *model.Node) (*model.Node, error) {
	existing, err := s.repo.GetNodeByTitle(ctx, parent.ID, src.Title)
	if err != nil {
		return nil, fmt.Errorf("checking for %q: %w", src.Title, err)
	}
	if existing != nil {
		if !existing.IsFolder() {
			return nil, &ConflictError{ParentID: parent.ID, Title: src.Title, Reason: "a file with this title exists at the destination"}
		}
		return existing, nil
	}

	node := &model.Node{
		UserID:         s.userID,
		Title:          src.Title,
		ParentID:       parent.ID,
		Type:           model.Folder,
		FilesystemPath: s.paths.ChildPath(parent, src.Title),
		MimeType:       model.FolderMimeType,
		ModifiedAt:     src.ModifiedAt,
		Version:        1,
	}
	abs := s.paths.AbsolutePath(s.userID, node)
	if err := s.fsys.CreateDirectory(ctx, abs); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, &ConflictError{ParentID: parent.ID, Title: src.Title, Reason: "directory already exists on disk"}
		}
		return nil, fmt.Errorf("creating folder %q: %w", src.Title, err)
	}
	id, err := s.repo.AddNode(ctx, node)
	if err != nil {
		return nil, &OrphanedResourceError{Path: abs, Err: err}
	}
	node.ID = id
	s.logger.Debug("destination folder created", "id", id, "path", node.FilesystemPath)
	return node, nil
}

func (s *MoveService) relocateFile(ctx context.Context, src, parent *model.Node, keepOld bool) error {
	existing, err := s.repo.GetNodeByTitle(ctx, parent.ID, src.Title)
	if err != nil {
		return fmt.Errorf("checking for %q: %w", src.Title, err)
	}

	transfer := s.fsys.Copy
	if !keepOld {
		transfer = s.fsys.Move
	}
	srcAbs := s.paths.AbsolutePath(s.userID, src)

	if existing != nil {
		if existing.IsFolder() {
			return &ConflictError{ParentID: parent.ID, Title: src.Title, Reason: "a folder with this title exists at the destination"}
		}
		v, err := s.versions.VersionFileNode(ctx, existing)
		if err != nil {
			return fmt.Errorf("versioning %q before overwrite: %w", existing.Title, err)
		}
		if err := transfer(ctx, srcAbs, s.paths.AbsolutePath(s.userID, existing)); err != nil {
			discardSnapshot(ctx, s.versions, s.logger, v)
			return fmt.Errorf("transferring %q: %w", src.Title, err)
		}
		updated := *existing
		updated.MimeType = src.MimeType
		updated.Size = src.Size
		updated.ModifiedAt = src.ModifiedAt
		if err := s.repo.UpdateNode(ctx, existing, &updated); err != nil {
			return fmt.Errorf("updating %q: %w", existing.Title, err)
		}
		s.logger.Debug("file merged", "source_id", src.ID, "dest_id", existing.ID)
	} else {
		node := *src
		node.ID = 0
		node.ParentID = parent.ID
		node.FilesystemPath = s.paths.ChildPath(parent, src.Title)
		node.Version = 1
		dstAbs := s.paths.AbsolutePath(s.userID, &node)
		if err := transfer(ctx, srcAbs, dstAbs); err != nil {
			return fmt.Errorf("transferring %q: %w", src.Title, err)
		}
		id, err := s.repo.AddNode(ctx, &node)
		if err != nil {
			return &OrphanedResourceError{Path: dstAbs, Err: err}
		}
		s.logger.Debug("file relocated", "source_id", src.ID, "dest_id", id)
	}

	if keepOld {
		return nil
	}
	if _, err := s.repo.PermanentDelete(ctx, src.ID); err != nil {
		return fmt.Errorf("removing moved node %d: %w", src.ID, err)
	}
	return nil
}

// removeSourceFolder drops a moved folder whose children have all been
// relocated.
func (s *MoveService) removeSourceFolder(ctx context.Context, folder *model.Node) error {
	abs := s.paths.AbsolutePath(s.userID, folder)
	err := s.repo.DeleteNode(ctx, folder, func() error {
		return s.fsys.RemoveDirectory(ctx, abs)
	})
	if err != nil {
		return fmt.Errorf("removing moved folder %d: %w", folder.ID, err)
	}
	return nil
}
