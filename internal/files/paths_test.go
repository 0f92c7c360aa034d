package files_test

import (
	"context"
	"errors"
	"testing"

	"hs-go/internal/files"
	"hs-go/internal/fs"
	"hs-go/internal/model"
	"hs-go/internal/testutil"
)

func TestPathManager_Paths(t *testing.T) {
	p := files.NewPathManager("/data", testutil.NewStubIDGenerator())

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"user root", p.UserRoot(7), "/data/7"},
		{"system dir", p.SystemDir(7), "/data/7/.system"},
		{"trash dir", p.TrashDir(7), "/data/7/.system/trash"},
		{"versions dir", p.VersionsDir(7), "/data/7/.system/versions"},
		{"temp dir", p.TempDir(7), "/data/7/.system/temp"},
		{"trash path", p.TrashPath(7, "x"), "/data/7/.system/trash/x"},
		{"version path", p.VersionPath(7, "x"), "/data/7/.system/versions/x"},
		{"temp file", p.TempFile(7), "/data/7/.system/temp/id-1"},
		{"absolute root", p.AbsolutePath(7, &model.Node{}), "/data/7"},
		{"absolute nested", p.AbsolutePath(7, &model.Node{FilesystemPath: "Docs/a.txt"}), "/data/7/Docs/a.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestPathManager_ChildPath(t *testing.T) {
	p := files.NewPathManager("/data", testutil.NewStubIDGenerator())

	root := &model.Node{}
	if got := p.ChildPath(root, "Docs"); got != "Docs" {
		t.Errorf("ChildPath(root) = %q, want %q", got, "Docs")
	}
	docs := &model.Node{ParentID: 1, FilesystemPath: "Docs"}
	if got := p.ChildPath(docs, "a.txt"); got != "Docs/a.txt" {
		t.Errorf("ChildPath(Docs) = %q, want %q", got, "Docs/a.txt")
	}
}

func TestPathManager_Provision(t *testing.T) {
	ctx := context.Background()

	t.Run("creates skeleton", func(t *testing.T) {
		m := fs.NewMemoryFileSystem("/data")
		p := files.NewPathManager("/data", testutil.NewStubIDGenerator())

		if err := p.Provision(ctx, m, 3); err != nil {
			t.Fatalf("Provision() error = %v", err)
		}
		for _, dir := range []string{p.UserRoot(3), p.TrashDir(3), p.VersionsDir(3), p.TempDir(3)} {
			if !m.IsDir(dir) {
				t.Errorf("%s not created", dir)
			}
		}
	})

	t.Run("fails when user root exists", func(t *testing.T) {
		m := fs.NewMemoryFileSystem("/data/3")
		p := files.NewPathManager("/data", testutil.NewStubIDGenerator())

		if err := p.Provision(ctx, m, 3); err == nil {
			t.Fatal("Provision() expected error for existing user root")
		}
	})

	t.Run("removes partial skeleton on failure", func(t *testing.T) {
		m := fs.NewMemoryFileSystem("/data")
		p := files.NewPathManager("/data", testutil.NewStubIDGenerator())
		boom := errors.New("disk full")
		m.FailOn(fs.OpCreateDirectory, p.VersionsDir(3), boom)

		err := p.Provision(ctx, m, 3)
		if !errors.Is(err, boom) {
			t.Fatalf("Provision() error = %v, want %v", err, boom)
		}
		if m.Exists(p.UserRoot(3)) {
			t.Errorf("partial skeleton left behind: %v", m.List("/data"))
		}
	})
}
