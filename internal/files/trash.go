package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sync/errgroup"

	"hs-go/internal/model"
)

// trashConcurrency bounds how many subtrees TrashNodes processes at once.
const trashConcurrency = 3

// TrashService moves subtrees out of the live catalog and destroys them.
type TrashService struct {
	userID int64
	repo   NodeRepository
	fsys   FileSystem
	paths  *PathManager
	logger Logger
	clock  Clock
	ids    IDGenerator
}

// NewTrashService creates a TrashService for one user.
func NewTrashService(userID int64, repo NodeRepository, fsys FileSystem, paths *PathManager, logger Logger, clock Clock, ids IDGenerator) *TrashService {
	return &TrashService{
		userID: userID,
		repo:   repo,
		fsys:   fsys,
		paths:  paths,
		logger: logger,
		clock:  clock,
		ids:    ids,
	}
}

// MoveToTrash quarantines the node and every descendant, deepest first.
// Each node is handled in its own transaction: the quarantine row is
// inserted and the live row deleted, then the file is moved into the trash
// area (or the emptied folder directory is removed), and the transaction
// commits only if that physical step succeeded. A failure leaves the failing
// node live and everything trashed before it in the trash.
func (s *TrashService) MoveToTrash(ctx context.Context, id int64) error {
	st, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if err := st.transition(model.Trashed); err != nil {
		return err
	}
	node := st.live
	if node.IsRoot() {
		return fmt.Errorf("%w: the root folder cannot be trashed", ErrInvalidOperation)
	}

	subtree, err := s.subtree(ctx, node)
	if err != nil {
		return err
	}

	for i := len(subtree) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := subtree[i]
		if err := s.trashOne(ctx, n); err != nil {
			if n.ID != node.ID && errors.Is(err, ErrNotFound) {
				continue
			}
			return fmt.Errorf("trashing node %d: %w", n.ID, err)
		}
	}

	s.logger.Info("node trashed", "id", node.ID, "path", node.FilesystemPath, "nodes", len(subtree))
	return nil
}

// TrashNodes trashes several subtrees concurrently. Nodes that are already
// gone or already trashed, for example because another id was their
// ancestor, are skipped.
func (s *TrashService) TrashNodes(ctx context.Context, ids []int64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(trashConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			err := s.MoveToTrash(gctx, id)
			var te *TransitionError
			switch {
			case err == nil, errors.Is(err, ErrNotFound):
				return nil
			case errors.As(err, &te) && te.From == model.Trashed:
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (s *TrashService) trashOne(ctx context.Context, n *model.Node) error {
	name := s.ids.New()
	abs := s.paths.AbsolutePath(s.userID, n)
	relocate := func() error {
		if n.IsFolder() {
			return s.fsys.RemoveDirectory(ctx, abs)
		}
		return s.fsys.Move(ctx, abs, s.paths.TrashPath(s.userID, name))
	}
	if err := s.repo.MoveToTrash(ctx, n, name, s.clock.Now(), relocate); err != nil {
		return err
	}
	s.logger.Debug("node quarantined", "id", n.ID, "trash_name", name)
	return nil
}

// ListTrash returns the user's quarantined nodes, most recently deleted first.
func (s *TrashService) ListTrash(ctx context.Context) ([]*model.TrashNode, error) {
	return s.repo.ListTrash(ctx)
}

// PurgeTrash permanently destroys one quarantined node.
func (s *TrashService) PurgeTrash(ctx context.Context, id int64) error {
	st, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if err := st.transition(model.Purged); err != nil {
		return err
	}
	if st.trashed == nil {
		// Live nodes are purged through Delete.
		return fmt.Errorf("node %d is not in the trash: %w", id, ErrNotFound)
	}
	tn := st.trashed

	physical := func() error {
		if tn.IsFolder() {
			return nil
		}
		err := s.fsys.RemoveFile(ctx, s.paths.TrashPath(s.userID, tn.FileName))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := s.repo.PurgeTrashNode(ctx, tn, physical); err != nil {
		return fmt.Errorf("purging node %d: %w", id, err)
	}

	s.logger.Info("node purged", "id", id, "trash_name", tn.FileName)
	return nil
}

// EmptyTrash purges every quarantined node and returns how many were purged.
func (s *TrashService) EmptyTrash(ctx context.Context) (int, error) {
	trashed, err := s.repo.ListTrash(ctx)
	if err != nil {
		return 0, err
	}
	for i, tn := range trashed {
		if err := s.PurgeTrash(ctx, tn.ID); err != nil {
			return i, err
		}
	}
	return len(trashed), nil
}

// Restore is reserved. Re-inserting a quarantined node needs a validated
// live parent, which is not decided yet.
func (s *TrashService) Restore(ctx context.Context, id int64) error {
	st, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if err := st.transition(model.Restored); err != nil {
		return err
	}
	return fmt.Errorf("restoring node %d: %w", id, ErrNotImplemented)
}

// Delete permanently removes a node and its subtree without passing
// through the trash. A node that is already in the trash is purged.
// Versions are kept.
func (s *TrashService) Delete(ctx context.Context, id int64) error {
	st, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if err := st.transition(model.Purged); err != nil {
		return err
	}
	if st.trashed != nil {
		return s.PurgeTrash(ctx, id)
	}
	node := st.live
	if node.IsRoot() {
		return fmt.Errorf("%w: the root folder cannot be deleted", ErrInvalidOperation)
	}

	subtree, err := s.subtree(ctx, node)
	if err != nil {
		return err
	}

	for i := len(subtree) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := subtree[i]
		abs := s.paths.AbsolutePath(s.userID, n)
		err := s.repo.DeleteNode(ctx, n, func() error {
			if n.IsFolder() {
				return s.fsys.RemoveDirectory(ctx, abs)
			}
			return s.fsys.RemoveFile(ctx, abs)
		})
		if err != nil {
			if n.ID != node.ID && errors.Is(err, ErrNotFound) {
				continue
			}
			return fmt.Errorf("deleting node %d: %w", n.ID, err)
		}
	}

	s.logger.Info("node deleted", "id", node.ID, "path", node.FilesystemPath, "nodes", len(subtree))
	return nil
}

// subtree returns node followed by its descendants, shallowest first.
func (s *TrashService) subtree(ctx context.Context, node *model.Node) ([]*model.Node, error) {
	descendants, err := s.repo.GetDescendants(ctx, node.ID)
	if err != nil {
		return nil, fmt.Errorf("reading descendants of %d: %w", node.ID, err)
	}
	return append([]*model.Node{node}, descendants...), nil
}

// nodeState is where an id currently sits in the lifecycle: exactly one of
// live and trashed is set.
type nodeState struct {
	id      int64
	state   model.NodeState
	live    *model.Node
	trashed *model.TrashNode
}

// lookup finds id in the live catalog or in the trash. An id in neither
// was never created or has been purged, which reads as ErrNotFound.
func (s *TrashService) lookup(ctx context.Context, id int64) (*nodeState, error) {
	node, err := s.repo.GetNode(ctx, id)
	if err == nil {
		return &nodeState{id: id, state: model.Active, live: node}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	tn, err := s.repo.GetTrashNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return &nodeState{id: id, state: model.Trashed, trashed: tn}, nil
}

func (n *nodeState) transition(to model.NodeState) error {
	if !model.CanTransition(n.state, to) {
		return &TransitionError{ID: n.id, From: n.state, To: to}
	}
	return nil
}
