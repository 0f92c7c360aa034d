package files

import (
	"context"
	"time"

	"hs-go/internal/model"
)

// NodeRepository is the catalog of one user's nodes. It is the only writer
// of catalog state. Methods taking a callback run it inside the same
// transaction as their catalog change and commit only if it returns nil;
// callbacks must not use the repository.
type NodeRepository interface {
	// Node reads

	// GetNode returns the node or an error matching ErrNotFound.
	GetNode(ctx context.Context, id int64) (*model.Node, error)
	GetRootNode(ctx context.Context) (*model.Node, error)
	// GetNodeByPath returns nil, nil if no node has the path.
	GetNodeByPath(ctx context.Context, path string) (*model.Node, error)
	// GetNodeByTitle returns nil, nil if the parent has no child with that title.
	GetNodeByTitle(ctx context.Context, parentID int64, title string) (*model.Node, error)
	GetChildren(ctx context.Context, parentID int64) ([]*model.Node, error)
	ListChildren(ctx context.Context, parentID int64, opts model.ListOptions) (*model.Page, error)
	// GetAncestors returns the chain from the top-level folder down to the
	// node itself. The hidden root is not included.
	GetAncestors(ctx context.Context, id int64) ([]*model.Node, error)
	// GetDescendants returns every node below id, shallowest first.
	GetDescendants(ctx context.Context, id int64) ([]*model.Node, error)

	// Node writes

	AddNode(ctx context.Context, node *model.Node) (int64, error)
	// UpdateNode replaces content type, timestamp and size and sets the
	// version to old.Version+1. It fails with a conflict if the stored
	// version no longer equals old.Version.
	UpdateNode(ctx context.Context, old, updated *model.Node) error
	PermanentDelete(ctx context.Context, id int64) (int64, error)
	DeleteNode(ctx context.Context, node *model.Node, physical func() error) error
	RenameNode(ctx context.Context, node *model.Node, title, path string, physical func() error) error

	// Trash

	MoveToTrash(ctx context.Context, node *model.Node, trashName string, deletedAt time.Time, relocate func() error) error
	ListTrash(ctx context.Context) ([]*model.TrashNode, error)
	GetTrashNode(ctx context.Context, id int64) (*model.TrashNode, error)
	PurgeTrashNode(ctx context.Context, node *model.TrashNode, physical func() error) error

	// Versions

	AddVersion(ctx context.Context, v *model.Version) (int64, error)
	GetVersions(ctx context.Context, nodeID int64) ([]*model.Version, error)
	// DeleteVersion drops a version record. Only an overwrite that never
	// happened may discard its snapshot.
	DeleteVersion(ctx context.Context, id int64) error

	// Favorites

	SetFavorite(ctx context.Context, id int64) error
	UnsetFavorite(ctx context.Context, id int64) error
}
