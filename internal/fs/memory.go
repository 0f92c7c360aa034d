package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	iofs "io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"hs-go/internal/files"
)

// Op names a MemoryFileSystem operation for failure injection.
type Op string

const (
	OpCreateDirectory Op = "mkdir"
	OpWrite           Op = "write"
	OpCopy            Op = "copy"
	OpMove            Op = "move"
	OpRemoveFile      Op = "remove"
	OpRemoveDirectory Op = "rmdir"
	OpRemoveAll       Op = "removeall"
	OpOpen            Op = "open"
)

type memEntry struct {
	dir  bool
	data []byte
}

// MemoryFileSystem is an in-memory files.FileSystem for tests. It behaves
// like a POSIX tree: creating an entry requires its parent directory, and
// only empty directories can be removed with RemoveDirectory.
// This implementation is safe for concurrent use.
type MemoryFileSystem struct {
	entries  *xsync.Map[string, *memEntry]
	failures *xsync.Map[string, error]
	// tree is held for writing by operations that touch more than one entry.
	tree sync.RWMutex
}

// NewMemoryFileSystem creates an empty tree containing the given directories
// and their parents.
func NewMemoryFileSystem(dirs ...string) *MemoryFileSystem {
	m := &MemoryFileSystem{
		entries:  xsync.NewMap[string, *memEntry](),
		failures: xsync.NewMap[string, error](),
	}
	m.entries.Store(string(filepath.Separator), &memEntry{dir: true})
	for _, d := range dirs {
		m.MkdirAll(d)
	}
	return m
}

// FailOn makes every op on path fail with err until ClearFailures. An empty
// path fails the op everywhere. For Copy and Move either end matches.
func (m *MemoryFileSystem) FailOn(op Op, path string, err error) {
	m.failures.Store(failureKey(op, path), err)
}

// ClearFailures removes all injected failures.
func (m *MemoryFileSystem) ClearFailures() {
	m.failures.Clear()
}

func failureKey(op Op, path string) string {
	if path != "" {
		path = filepath.Clean(path)
	}
	return string(op) + "\x00" + path
}

func (m *MemoryFileSystem) injected(op Op, paths ...string) error {
	if err, ok := m.failures.Load(failureKey(op, "")); ok {
		return err
	}
	for _, p := range paths {
		if err, ok := m.failures.Load(failureKey(op, p)); ok {
			return err
		}
	}
	return nil
}

// MkdirAll creates path and any missing parents.
func (m *MemoryFileSystem) MkdirAll(path string) {
	path = filepath.Clean(path)
	for p := path; ; p = filepath.Dir(p) {
		m.entries.LoadOrStore(p, &memEntry{dir: true})
		if p == filepath.Dir(p) {
			return
		}
	}
}

// WriteFile stores data at path, creating parents. It bypasses failure injection.
func (m *MemoryFileSystem) WriteFile(path string, data []byte) {
	path = filepath.Clean(path)
	m.MkdirAll(filepath.Dir(path))
	m.entries.Store(path, &memEntry{data: bytes.Clone(data)})
}

// ReadFile returns the content of the file at path.
func (m *MemoryFileSystem) ReadFile(path string) ([]byte, error) {
	e, ok := m.entries.Load(filepath.Clean(path))
	if !ok {
		return nil, iofs.ErrNotExist
	}
	if e.dir {
		return nil, errors.New("is a directory")
	}
	return bytes.Clone(e.data), nil
}

// Exists reports whether any entry exists at path.
func (m *MemoryFileSystem) Exists(path string) bool {
	_, ok := m.entries.Load(filepath.Clean(path))
	return ok
}

// IsDir reports whether a directory exists at path.
func (m *MemoryFileSystem) IsDir(path string) bool {
	e, ok := m.entries.Load(filepath.Clean(path))
	return ok && e.dir
}

// List returns the sorted paths of all entries strictly below dir.
func (m *MemoryFileSystem) List(dir string) []string {
	prefix := withSep(filepath.Clean(dir))
	var out []string
	m.entries.Range(func(p string, _ *memEntry) bool {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
		return true
	})
	sort.Strings(out)
	return out
}

func (m *MemoryFileSystem) CreateDirectory(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if err := m.check(ctx, OpCreateDirectory, path); err != nil {
		return err
	}
	m.tree.RLock()
	defer m.tree.RUnlock()

	if err := m.requireParent(OpCreateDirectory, path); err != nil {
		return err
	}
	if _, loaded := m.entries.LoadOrStore(path, &memEntry{dir: true}); loaded {
		return ioErr(string(OpCreateDirectory), path, iofs.ErrExist)
	}
	return nil
}

func (m *MemoryFileSystem) CreateFileFromStream(ctx context.Context, path string, r io.Reader) (int64, error) {
	path = filepath.Clean(path)
	if err := m.check(ctx, OpWrite, path); err != nil {
		return 0, err
	}
	data, err := io.ReadAll(&ctxReader{ctx: ctx, r: r})
	if err != nil {
		return 0, ioErr(string(OpWrite), path, err)
	}

	m.tree.RLock()
	defer m.tree.RUnlock()
	if err := m.storeFile(OpWrite, path, data); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (m *MemoryFileSystem) Copy(ctx context.Context, src, dst string) error {
	src, dst = filepath.Clean(src), filepath.Clean(dst)
	if err := m.check(ctx, OpCopy, src, dst); err != nil {
		return err
	}
	m.tree.RLock()
	defer m.tree.RUnlock()

	e, ok := m.entries.Load(src)
	if !ok {
		return ioErr(string(OpCopy), src, iofs.ErrNotExist)
	}
	if e.dir {
		return ioErr(string(OpCopy), src, errors.New("is a directory"))
	}
	return m.storeFile(OpCopy, dst, bytes.Clone(e.data))
}

func (m *MemoryFileSystem) Move(ctx context.Context, src, dst string) error {
	src, dst = filepath.Clean(src), filepath.Clean(dst)
	if err := m.check(ctx, OpMove, src, dst); err != nil {
		return err
	}
	m.tree.Lock()
	defer m.tree.Unlock()

	e, ok := m.entries.Load(src)
	if !ok {
		return ioErr(string(OpMove), src, iofs.ErrNotExist)
	}
	if err := m.requireParent(OpMove, dst); err != nil {
		return err
	}
	if !e.dir {
		if err := m.storeFile(OpMove, dst, e.data); err != nil {
			return err
		}
		m.entries.Delete(src)
		return nil
	}

	if _, exists := m.entries.Load(dst); exists {
		return ioErr(string(OpMove), dst, iofs.ErrExist)
	}
	if strings.HasPrefix(dst, withSep(src)) {
		return ioErr(string(OpMove), dst, errors.New("cannot move a directory into itself"))
	}
	prefix := withSep(src)
	var children []string
	m.entries.Range(func(p string, _ *memEntry) bool {
		if strings.HasPrefix(p, prefix) {
			children = append(children, p)
		}
		return true
	})
	m.entries.Store(dst, e)
	m.entries.Delete(src)
	for _, p := range children {
		child, _ := m.entries.LoadAndDelete(p)
		m.entries.Store(dst+p[len(src):], child)
	}
	return nil
}

func (m *MemoryFileSystem) RemoveFile(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if err := m.check(ctx, OpRemoveFile, path); err != nil {
		return err
	}
	m.tree.RLock()
	defer m.tree.RUnlock()

	e, ok := m.entries.Load(path)
	if !ok {
		return ioErr(string(OpRemoveFile), path, iofs.ErrNotExist)
	}
	if e.dir {
		return ioErr(string(OpRemoveFile), path, errors.New("is a directory"))
	}
	m.entries.Delete(path)
	return nil
}

func (m *MemoryFileSystem) RemoveDirectory(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if err := m.check(ctx, OpRemoveDirectory, path); err != nil {
		return err
	}
	m.tree.Lock()
	defer m.tree.Unlock()

	e, ok := m.entries.Load(path)
	if !ok {
		return ioErr(string(OpRemoveDirectory), path, iofs.ErrNotExist)
	}
	if !e.dir {
		return ioErr(string(OpRemoveDirectory), path, errors.New("not a directory"))
	}
	if len(m.List(path)) > 0 {
		return ioErr(string(OpRemoveDirectory), path, errors.New("directory not empty"))
	}
	m.entries.Delete(path)
	return nil
}

func (m *MemoryFileSystem) RemoveDirectoryRecursive(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if err := m.check(ctx, OpRemoveAll, path); err != nil {
		return err
	}
	m.tree.Lock()
	defer m.tree.Unlock()

	for _, p := range m.List(path) {
		m.entries.Delete(p)
	}
	m.entries.Delete(path)
	return nil
}

func (m *MemoryFileSystem) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	path = filepath.Clean(path)
	if err := m.check(ctx, OpOpen, path); err != nil {
		return nil, err
	}
	data, err := m.ReadFile(path)
	if err != nil {
		return nil, ioErr(string(OpOpen), path, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryFileSystem) check(ctx context.Context, op Op, paths ...string) error {
	if err := ctx.Err(); err != nil {
		return ioErr(string(op), paths[0], err)
	}
	if err := m.injected(op, paths...); err != nil {
		return ioErr(string(op), paths[0], err)
	}
	return nil
}

func (m *MemoryFileSystem) requireParent(op Op, path string) error {
	parent, ok := m.entries.Load(filepath.Dir(path))
	if !ok || !parent.dir {
		return ioErr(string(op), path, iofs.ErrNotExist)
	}
	return nil
}

func (m *MemoryFileSystem) storeFile(op Op, path string, data []byte) error {
	if err := m.requireParent(op, path); err != nil {
		return err
	}
	if e, ok := m.entries.Load(path); ok && e.dir {
		return ioErr(string(op), path, errors.New("is a directory"))
	}
	m.entries.Store(path, &memEntry{data: data})
	return nil
}

func withSep(dir string) string {
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir
	}
	return dir + string(filepath.Separator)
}

var _ files.FileSystem = (*MemoryFileSystem)(nil)
