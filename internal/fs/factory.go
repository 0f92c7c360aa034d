package fs

import (
	"fmt"
	"os"

	"hs-go/internal/config"
	"hs-go/internal/files"
)

// NewFileSystemFromConfig creates the file system adapter described by cfg
// and makes sure its root directory exists.
func NewFileSystemFromConfig(cfg config.StorageConfig) (files.FileSystem, string, error) {
	switch cfg.Type {
	case "os":
		if cfg.Root == "" {
			return nil, "", fmt.Errorf("root required for os storage")
		}
		if err := os.MkdirAll(cfg.Root, dirPerm); err != nil {
			return nil, "", fmt.Errorf("creating storage root: %w", err)
		}
		return NewOSFileSystem(), cfg.Root, nil
	case "memory":
		root := cfg.Root
		if root == "" {
			root = "/hs"
		}
		return NewMemoryFileSystem(root), root, nil
	default:
		return nil, "", fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
