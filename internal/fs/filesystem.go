package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"hs-go/internal/files"
)

const (
	dirPerm  = 0755
	filePerm = 0644
)

// OSFileSystem implements files.FileSystem on the local disk.
// Writes go through a temp file in the destination directory followed by a
// rename, so a failed write never leaves a partial destination.
type OSFileSystem struct{}

// NewOSFileSystem creates a file system adapter for the local disk.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

func (f *OSFileSystem) CreateDirectory(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return ioErr("mkdir", path, err)
	}
	if err := os.Mkdir(path, dirPerm); err != nil {
		return ioErr("mkdir", path, err)
	}
	return nil
}

func (f *OSFileSystem) CreateFileFromStream(ctx context.Context, path string, r io.Reader) (int64, error) {
	n, err := writeFile(ctx, path, r)
	if err != nil {
		return 0, ioErr("write", path, err)
	}
	return n, nil
}

func (f *OSFileSystem) Copy(ctx context.Context, src, dst string) error {
	if err := copyFile(ctx, src, dst); err != nil {
		return ioErr("copy", src, err)
	}
	return nil
}

func (f *OSFileSystem) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return ioErr("move", src, err)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return ioErr("move", src, err)
	}

	// Renames cannot cross devices; fall back to copy and remove for files.
	info, statErr := os.Lstat(src)
	if statErr != nil {
		return ioErr("move", src, statErr)
	}
	if info.IsDir() {
		return ioErr("move", src, err)
	}
	if err := copyFile(ctx, src, dst); err != nil {
		return ioErr("move", src, err)
	}
	if err := os.Remove(src); err != nil {
		return ioErr("move", src, err)
	}
	return nil
}

func (f *OSFileSystem) RemoveFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return ioErr("remove", path, err)
	}
	info, err := os.Lstat(path)
	if err != nil {
		return ioErr("remove", path, err)
	}
	if info.IsDir() {
		return ioErr("remove", path, errors.New("is a directory"))
	}
	if err := os.Remove(path); err != nil {
		return ioErr("remove", path, err)
	}
	return nil
}

func (f *OSFileSystem) RemoveDirectory(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return ioErr("rmdir", path, err)
	}
	info, err := os.Lstat(path)
	if err != nil {
		return ioErr("rmdir", path, err)
	}
	if !info.IsDir() {
		return ioErr("rmdir", path, errors.New("not a directory"))
	}
	if err := os.Remove(path); err != nil {
		return ioErr("rmdir", path, err)
	}
	return nil
}

func (f *OSFileSystem) RemoveDirectoryRecursive(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return ioErr("removeall", path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return ioErr("removeall", path, err)
	}
	return nil
}

func (f *OSFileSystem) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, ioErr("open", path, err)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, ioErr("open", path, err)
	}
	return file, nil
}

func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}

	n, err := writeFile(ctx, dst, in)
	if err != nil {
		return err
	}
	if n != info.Size() {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", info.Size(), n)
	}
	return nil
}

// writeFile writes r to destPath using an atomic write (temp file + rename).
func writeFile(ctx context.Context, destPath string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// The temp file lives next to the destination so the rename stays on
	// one file system.
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Chmod(filePerm); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return written, nil
}

// ctxReader stops a long copy once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func ioErr(op, path string, err error) error {
	return &files.IOError{Op: op, Path: path, Err: err}
}

var _ files.FileSystem = (*OSFileSystem)(nil)
