package fs

import (
	"context"
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hs-go/internal/files"
)

func TestOSFileSystem_CreateDirectory(t *testing.T) {
	ctx := context.Background()
	f := NewOSFileSystem()
	dir := filepath.Join(t.TempDir(), "docs")

	if err := f.CreateDirectory(ctx, dir); err != nil {
		t.Fatalf("CreateDirectory() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}

	err = f.CreateDirectory(ctx, dir)
	if !errors.Is(err, iofs.ErrExist) {
		t.Errorf("second CreateDirectory() error = %v, want ErrExist", err)
	}
	var ioe *files.IOError
	if !errors.As(err, &ioe) {
		t.Errorf("error %T is not *files.IOError", err)
	}
}

func TestOSFileSystem_CreateFileFromStream(t *testing.T) {
	ctx := context.Background()
	f := NewOSFileSystem()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	n, err := f.CreateFileFromStream(ctx, path, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("CreateFileFromStream() error = %v", err)
	}
	if n != 5 {
		t.Errorf("written = %d, want 5", n)
	}

	// Overwrite replaces content.
	if _, err := f.CreateFileFromStream(ctx, path, strings.NewReader("hi")); err != nil {
		t.Fatalf("overwrite error = %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "hi" {
		t.Errorf("content = %q, want %q", got, "hi")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestOSFileSystem_CreateFileFromStream_Failure(t *testing.T) {
	ctx := context.Background()
	f := NewOSFileSystem()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	_, err := f.CreateFileFromStream(ctx, path, io.MultiReader(strings.NewReader("partial"), errReader{}))
	if err == nil {
		t.Fatal("expected error from failing reader")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("failed write left %d entries", len(entries))
	}
}

func TestOSFileSystem_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewOSFileSystem()

	_, err := f.CreateFileFromStream(ctx, filepath.Join(t.TempDir(), "x"), strings.NewReader("x"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestOSFileSystem_CopyMove(t *testing.T) {
	ctx := context.Background()
	f := NewOSFileSystem()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(src, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	cp := filepath.Join(dir, "copy.txt")
	if err := f.Copy(ctx, src, cp); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if got, _ := os.ReadFile(cp); string(got) != "data" {
		t.Errorf("copy content = %q", got)
	}

	mv := filepath.Join(dir, "moved.txt")
	if err := f.Move(ctx, src, mv); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still exists after Move")
	}

	if err := f.Copy(ctx, filepath.Join(dir, "missing"), cp); !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("Copy(missing) error = %v, want ErrNotExist", err)
	}
}

func TestOSFileSystem_MoveDirectory(t *testing.T) {
	ctx := context.Background()
	f := NewOSFileSystem()
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	if err := os.MkdirAll(filepath.Join(src, "b"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "b", "f.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := f.Move(ctx, src, filepath.Join(dir, "z")); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "z", "b", "f.txt")); err != nil {
		t.Errorf("moved tree incomplete: %v", err)
	}
}

func TestOSFileSystem_Remove(t *testing.T) {
	ctx := context.Background()
	f := NewOSFileSystem()
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	file := filepath.Join(sub, "f.txt")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := f.RemoveFile(ctx, sub); err == nil {
		t.Error("RemoveFile(dir) expected error")
	}
	if err := f.RemoveDirectory(ctx, file); err == nil {
		t.Error("RemoveDirectory(file) expected error")
	}
	if err := f.RemoveDirectory(ctx, sub); err == nil {
		t.Error("RemoveDirectory(non-empty) expected error")
	}
	if err := f.RemoveFile(ctx, file); err != nil {
		t.Fatalf("RemoveFile() error = %v", err)
	}
	if err := f.RemoveDirectory(ctx, sub); err != nil {
		t.Fatalf("RemoveDirectory() error = %v", err)
	}

	tree := filepath.Join(dir, "tree", "deep")
	os.MkdirAll(tree, 0755)
	os.WriteFile(filepath.Join(tree, "f"), []byte("x"), 0644)
	if err := f.RemoveDirectoryRecursive(ctx, filepath.Join(dir, "tree")); err != nil {
		t.Fatalf("RemoveDirectoryRecursive() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tree")); !os.IsNotExist(err) {
		t.Error("tree still exists")
	}
}

func TestOSFileSystem_Open(t *testing.T) {
	ctx := context.Background()
	f := NewOSFileSystem()
	path := filepath.Join(t.TempDir(), "f.txt")
	os.WriteFile(path, []byte("content"), 0644)

	rc, err := f.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "content" {
		t.Errorf("content = %q", got)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("stream broke") }
