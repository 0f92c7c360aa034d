package model

import "time"

// RootID is the API alias for a user's root folder. The root row itself has
// a regular id and a NULL parent in the catalog.
const RootID int64 = 0

// FolderMimeType is the content type recorded for every folder node.
const FolderMimeType = "inode/directory"

// NodeType distinguishes folders from files. The numeric values are stored
// in the catalog and order listings (folders first).
type NodeType int16

const (
	Folder NodeType = 0
	File   NodeType = 1
)

func (t NodeType) String() string {
	switch t {
	case Folder:
		return "folder"
	case File:
		return "file"
	default:
		return "unknown"
	}
}

// Node is a catalog entry for a file or folder owned by one user.
type Node struct {
	ID             int64
	UserID         int64
	Title          string
	ParentID       int64  // 0 only for the user's root row
	Type           NodeType
	FilesystemPath string // relative to the user's root, "/"-separated
	MimeType       string
	ModifiedAt     time.Time
	Size           int64
	Version        int64
}

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool { return n.Type == Folder }

// IsRoot reports whether the node is the user's root folder.
func (n *Node) IsRoot() bool { return n.ParentID == 0 }

// Version is an immutable snapshot of a file node's content taken just
// before the content was overwritten.
type Version struct {
	ID         int64
	UserID     int64
	NodeID     int64
	Version    int64     // node version the snapshot was taken from
	CreatedAt  time.Time // when the snapshot was taken
	ModifiedAt time.Time // content timestamp of the snapshotted node
	Size       int64
	FileName   string // opaque name under the versions area
}

// TrashNode is a node moved out of the live catalog into quarantine.
type TrashNode struct {
	Node
	DeletedAt time.Time
	FileName  string // opaque name under the trash area
}

// DisplayNode is a node as shown in a folder listing.
type DisplayNode struct {
	ID         int64
	Title      string
	Type       NodeType
	MimeType   string
	ModifiedAt time.Time
	Size       int64
	Version    int64
	IsFavorite bool
}

// ParentRef identifies one step of a breadcrumb path.
type ParentRef struct {
	ID    int64
	Title string
}

// VersionRef describes one stored version of a file.
type VersionRef struct {
	Version   int64
	CreatedAt time.Time
	Size      int64
}

// Operation records a mutating command run against the catalog.
type Operation struct {
	ID         int64
	UserID     int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}

// User is an owning principal. Every node belongs to exactly one user.
type User struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}
