package files

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strconv"

	"hs-go/internal/model"
)

// SystemDirName is the reserved directory under every user root that holds
// trash, versions and temp files. No node may take this title at the root.
const SystemDirName = ".system"

const (
	trashDirName    = "trash"
	versionsDirName = "versions"
	tempDirName     = "temp"
)

// PathManager computes on-disk locations for a user's storage:
//
//	<root>/<userID>/
//	  <node paths...>
//	  .system/
//	    trash/<opaque name>
//	    versions/<opaque name>
//	    temp/<opaque name>
//
// Nothing is cached; every result depends only on the root and the user.
type PathManager struct {
	root string
	ids  IDGenerator
}

// NewPathManager creates a PathManager rooted at root.
func NewPathManager(root string, ids IDGenerator) *PathManager {
	return &PathManager{root: root, ids: ids}
}

// Root returns the storage root shared by all users.
func (p *PathManager) Root() string { return p.root }

func (p *PathManager) UserRoot(userID int64) string {
	return filepath.Join(p.root, strconv.FormatInt(userID, 10))
}

func (p *PathManager) SystemDir(userID int64) string {
	return filepath.Join(p.UserRoot(userID), SystemDirName)
}

func (p *PathManager) TrashDir(userID int64) string {
	return filepath.Join(p.SystemDir(userID), trashDirName)
}

func (p *PathManager) VersionsDir(userID int64) string {
	return filepath.Join(p.SystemDir(userID), versionsDirName)
}

func (p *PathManager) TempDir(userID int64) string {
	return filepath.Join(p.SystemDir(userID), tempDirName)
}

// TempFile returns a fresh, unused path in the user's temp directory.
func (p *PathManager) TempFile(userID int64) string {
	return filepath.Join(p.TempDir(userID), p.ids.New())
}

func (p *PathManager) TrashPath(userID int64, name string) string {
	return filepath.Join(p.TrashDir(userID), name)
}

func (p *PathManager) VersionPath(userID int64, name string) string {
	return filepath.Join(p.VersionsDir(userID), name)
}

// AbsolutePath returns where the node's content lives on disk.
func (p *PathManager) AbsolutePath(userID int64, node *model.Node) string {
	return filepath.Join(p.UserRoot(userID), filepath.FromSlash(node.FilesystemPath))
}

// ChildPath returns the stored relative path of a child titled title under
// parent. Children of the root get their bare title.
func (p *PathManager) ChildPath(parent *model.Node, title string) string {
	return path.Join(parent.FilesystemPath, title)
}

// Provision creates the directory skeleton for a new user. It fails on the
// first directory that already exists or cannot be created, after removing
// the directories it created itself.
func (p *PathManager) Provision(ctx context.Context, fsys FileSystem, userID int64) error {
	dirs := []string{
		p.UserRoot(userID),
		p.SystemDir(userID),
		p.TrashDir(userID),
		p.VersionsDir(userID),
		p.TempDir(userID),
	}
	for i, dir := range dirs {
		if err := fsys.CreateDirectory(ctx, dir); err != nil {
			for j := i - 1; j >= 0; j-- {
				fsys.RemoveDirectory(ctx, dirs[j])
			}
			return fmt.Errorf("provisioning storage for user %d: %w", userID, err)
		}
	}
	return nil
}
