package files

import (
	"context"
	"io"
)

// FileSystem performs physical operations on absolute paths. It never
// interprets paths and never rolls back on its own: a failed write leaves no
// destination behind, and undoing earlier steps is up to the caller.
//
// Implementations return *IOError with the underlying error reachable
// through errors.Is (fs.ErrExist, fs.ErrNotExist).
type FileSystem interface {
	// CreateDirectory creates a single directory. It fails if the path exists.
	CreateDirectory(ctx context.Context, path string) error

	// CreateFileFromStream writes r to path, replacing any existing file,
	// and returns the number of bytes written.
	CreateFileFromStream(ctx context.Context, path string, r io.Reader) (int64, error)

	// Copy copies the file at src to dst, replacing dst.
	Copy(ctx context.Context, src, dst string) error

	// Move relocates the file or directory at src to dst. An existing file
	// at dst is replaced.
	Move(ctx context.Context, src, dst string) error

	RemoveFile(ctx context.Context, path string) error

	// RemoveDirectory removes an empty directory.
	RemoveDirectory(ctx context.Context, path string) error

	RemoveDirectoryRecursive(ctx context.Context, path string) error

	// Open opens the file at path for reading.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}
