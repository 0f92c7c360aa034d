package files_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hs-go/internal/files"
	"hs-go/internal/fs"
	"hs-go/internal/model"
	"hs-go/internal/testutil"
)

// addNodeFailer fails every AddNode call after the physical step succeeded.
type addNodeFailer struct {
	files.NodeRepository
	err error
}

func (r *addNodeFailer) AddNode(context.Context, *model.Node) (int64, error) {
	return 0, r.err
}

func TestCreateFolder(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	id, err := env.Service.CreateFolder(ctx, model.RootID, "Docs")
	require.NoError(t, err)

	n := mustNode(t, env, id)
	root := mustNode(t, env, model.RootID)
	assert.Equal(t, "Docs", n.Title)
	assert.Equal(t, root.ID, n.ParentID)
	assert.Equal(t, model.Folder, n.Type)
	assert.Equal(t, "Docs", n.FilesystemPath)
	assert.Equal(t, model.FolderMimeType, n.MimeType)
	assert.Equal(t, int64(1), n.Version)
	assert.Zero(t, n.Size)
	assert.True(t, env.FS.IsDir(env.Abs("Docs")))

	subID, err := env.Service.CreateFolder(ctx, id, "Reports")
	require.NoError(t, err)
	assert.Equal(t, "Docs/Reports", mustNode(t, env, subID).FilesystemPath)
	assert.True(t, env.FS.IsDir(env.Abs("Docs/Reports")))
}

func TestCreateFolder_Errors(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	docs := mustFolder(t, env, model.RootID, "Docs")
	file := mustFile(t, env, docs, "a.txt", "x")

	t.Run("title collision", func(t *testing.T) {
		_, err := env.Service.CreateFolder(ctx, model.RootID, "Docs")
		assert.ErrorIs(t, err, files.ErrConflict)
	})

	t.Run("collision with a file", func(t *testing.T) {
		_, err := env.Service.CreateFolder(ctx, docs, "a.txt")
		assert.ErrorIs(t, err, files.ErrConflict)
	})

	t.Run("reserved name at root", func(t *testing.T) {
		_, err := env.Service.CreateFolder(ctx, model.RootID, ".system")
		assert.ErrorIs(t, err, files.ErrInvalidName)
	})

	t.Run("parent is a file", func(t *testing.T) {
		_, err := env.Service.CreateFolder(ctx, file, "x")
		assert.ErrorIs(t, err, files.ErrInvalidOperation)
	})

	t.Run("missing parent", func(t *testing.T) {
		_, err := env.Service.CreateFolder(ctx, 9999, "x")
		assert.ErrorIs(t, err, files.ErrNotFound)
	})

	t.Run("stray directory on disk", func(t *testing.T) {
		env.FS.MkdirAll(env.Abs("Stray"))
		_, err := env.Service.CreateFolder(ctx, model.RootID, "Stray")
		assert.ErrorIs(t, err, files.ErrConflict)
		n, err := env.Repo.GetNodeByTitle(ctx, mustNode(t, env, model.RootID).ID, "Stray")
		require.NoError(t, err)
		assert.Nil(t, n)
	})

	t.Run("physical failure leaves no node", func(t *testing.T) {
		boom := errors.New("permission denied")
		env.FS.FailOn(fs.OpCreateDirectory, "", boom)
		defer env.FS.ClearFailures()

		_, err := env.Service.CreateFolder(ctx, docs, "Broken")
		assert.ErrorIs(t, err, boom)
		n, err := env.Repo.GetNodeByTitle(ctx, docs, "Broken")
		require.NoError(t, err)
		assert.Nil(t, n)
	})
}

func TestCreateFolder_Orphaned(t *testing.T) {
	env := testutil.NewEnv(t)
	boom := errors.New("database is locked")
	repo := &addNodeFailer{NodeRepository: env.Repo, err: boom}
	versions := files.NewVersionService(env.User.ID, repo, env.FS, env.Paths, files.NewNopLogger(), env.Clock, env.IDs)
	svc := files.NewCreateService(env.User.ID, repo, env.FS, env.Paths, versions, files.NewNopLogger(), env.Clock)

	_, err := svc.CreateFolder(context.Background(), model.RootID, "Docs")

	var orphan *files.OrphanedResourceError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, env.Abs("Docs"), orphan.Path)
	assert.ErrorIs(t, err, boom)
	assert.True(t, env.FS.IsDir(orphan.Path))
}

func TestCreateFile(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	docs := mustFolder(t, env, model.RootID, "Docs")

	id, err := env.Service.CreateFile(ctx, docs, "a.txt", strings.NewReader("hello"))
	require.NoError(t, err)

	n := mustNode(t, env, id)
	assert.Equal(t, model.File, n.Type)
	assert.Equal(t, "Docs/a.txt", n.FilesystemPath)
	assert.Equal(t, int64(5), n.Size)
	assert.Equal(t, int64(1), n.Version)
	assert.True(t, env.Clock.Now().Equal(n.ModifiedAt), "ModifiedAt = %v", n.ModifiedAt)
	assert.True(t, strings.HasPrefix(n.MimeType, "text/plain"), "mime = %q", n.MimeType)
	assert.Equal(t, "hello", readContent(t, env, id))
}

func TestCreateFile_DetectsContentType(t *testing.T) {
	env := testutil.NewEnv(t)
	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 4000)

	id := mustFile(t, env, model.RootID, "image.bin", png)
	n := mustNode(t, env, id)
	assert.Equal(t, "image/png", n.MimeType)
	assert.Equal(t, int64(len(png)), n.Size, "stream must survive content sniffing")
}

func TestCreateFile_OverwriteVersions(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	docs := mustFolder(t, env, model.RootID, "Docs")
	id := mustFile(t, env, docs, "a.txt", "v1 content")

	env.Clock.Advance(time.Minute)
	again, err := env.Service.CreateFile(ctx, docs, "a.txt", strings.NewReader("v2"))
	require.NoError(t, err)
	assert.Equal(t, id, again, "overwrite keeps the node id")

	n := mustNode(t, env, id)
	assert.Equal(t, int64(2), n.Version)
	assert.Equal(t, int64(2), n.Size)
	assert.Equal(t, "v2", readContent(t, env, id))

	versions, err := env.Service.GetVersions(ctx, id)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, int64(1), versions[0].Version)
	assert.Equal(t, int64(10), versions[0].Size)

	rc, err := env.Service.OpenVersion(ctx, id, 1)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "v1 content", string(data))
}

func TestCreateFile_OverwriteRetryAfterWriteFailure(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	docs := mustFolder(t, env, model.RootID, "Docs")
	id := mustFile(t, env, docs, "a.txt", "v1")
	boom := errors.New("no space left on device")
	env.FS.FailOn(fs.OpWrite, env.Abs("Docs/a.txt"), boom)

	_, err := env.Service.CreateFile(ctx, docs, "a.txt", strings.NewReader("v2"))
	require.ErrorIs(t, err, boom)

	// The failed overwrite leaves neither a version record nor a snapshot.
	assert.Equal(t, int64(1), mustNode(t, env, id).Version)
	assert.Equal(t, "v1", readContent(t, env, id))
	versions, err := env.Service.GetVersions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, versions)
	assert.Empty(t, env.FS.List(env.Paths.VersionsDir(env.User.ID)))

	env.FS.ClearFailures()
	got, err := env.Service.CreateFile(ctx, docs, "a.txt", strings.NewReader("v2"))
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, int64(2), mustNode(t, env, id).Version)
	assert.Equal(t, "v2", readContent(t, env, id))

	versions, err = env.Service.GetVersions(ctx, id)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, int64(1), versions[0].Version)
}

func TestCreateFile_Errors(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	docs := mustFolder(t, env, model.RootID, "Docs")

	t.Run("file over folder", func(t *testing.T) {
		_, err := env.Service.CreateFile(ctx, model.RootID, "Docs", strings.NewReader("x"))
		assert.ErrorIs(t, err, files.ErrConflict)
		assert.True(t, env.FS.IsDir(env.Abs("Docs")))
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := env.Service.CreateFile(ctx, docs, "a/b", strings.NewReader("x"))
		assert.ErrorIs(t, err, files.ErrInvalidName)
	})

	t.Run("write failure leaves no node", func(t *testing.T) {
		boom := errors.New("disk full")
		env.FS.FailOn(fs.OpWrite, env.Abs("Docs/big.bin"), boom)
		defer env.FS.ClearFailures()

		_, err := env.Service.CreateFile(ctx, docs, "big.bin", strings.NewReader("x"))
		assert.ErrorIs(t, err, boom)
		n, err := env.Repo.GetNodeByTitle(ctx, docs, "big.bin")
		require.NoError(t, err)
		assert.Nil(t, n)
	})

	t.Run("failed overwrite keeps the old version live", func(t *testing.T) {
		id := mustFile(t, env, docs, "keep.txt", "original")
		env.FS.FailOn(fs.OpWrite, env.Abs("Docs/keep.txt"), errors.New("disk full"))
		defer env.FS.ClearFailures()

		_, err := env.Service.CreateFile(ctx, docs, "keep.txt", strings.NewReader("replacement"))
		require.Error(t, err)
		assert.Equal(t, int64(1), mustNode(t, env, id).Version)
		assert.Equal(t, "original", readContent(t, env, id))
	})
}

func TestCreateFile_Orphaned(t *testing.T) {
	env := testutil.NewEnv(t)
	repo := &addNodeFailer{NodeRepository: env.Repo, err: errors.New("database is locked")}
	svc := files.NewCreateService(env.User.ID, repo, env.FS, env.Paths, nil, files.NewNopLogger(), env.Clock)

	_, err := svc.CreateFile(context.Background(), model.RootID, "a.txt", strings.NewReader("x"))

	var orphan *files.OrphanedResourceError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, env.Abs("a.txt"), orphan.Path)
	assert.True(t, env.FS.Exists(orphan.Path))
}
