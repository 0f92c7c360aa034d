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

func titles(page *model.Page) []string {
	out := make([]string, len(page.Items))
	for i, item := range page.Items {
		out[i] = item.Title
	}
	return out
}

func TestListChildren(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	mustFile(t, env, model.RootID, "b.txt", "bb")
	env.Clock.Advance(time.Minute)
	mustFile(t, env, model.RootID, "A.txt", "a")
	mustFolder(t, env, model.RootID, "zeta")
	mustFolder(t, env, model.RootID, "Alpha")
	big := mustFile(t, env, model.RootID, "c.bin", strings.Repeat("x", 100))

	t.Run("default order is folders first then title", func(t *testing.T) {
		page, err := env.Service.ListChildren(ctx, model.RootID, model.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		assert.Equal(t, []string{"Alpha", "zeta", "A.txt", "b.txt", "c.bin"}, titles(page))
	})

	t.Run("descending size", func(t *testing.T) {
		opts := model.ListOptions{Sort: model.Sorting{Column: model.SortBySize, Descending: true}}
		page, err := env.Service.ListChildren(ctx, model.RootID, opts)
		require.NoError(t, err)
		// Equal folder sizes fall back to id order.
		assert.Equal(t, []string{"zeta", "Alpha", "c.bin", "b.txt", "A.txt"}, titles(page))
	})

	t.Run("paging", func(t *testing.T) {
		opts := model.ListOptions{Page: 2, PageSize: 2}
		page, err := env.Service.ListChildren(ctx, model.RootID, opts)
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		assert.Equal(t, []string{"A.txt", "b.txt"}, titles(page))

		opts.Page = 4
		page, err = env.Service.ListChildren(ctx, model.RootID, opts)
		require.NoError(t, err)
		assert.Empty(t, page.Items)
	})

	t.Run("favorites are flagged", func(t *testing.T) {
		require.NoError(t, env.Service.SetFavorite(ctx, big))
		require.NoError(t, env.Service.SetFavorite(ctx, big), "setting twice is harmless")

		page, err := env.Service.ListChildren(ctx, model.RootID, model.ListOptions{})
		require.NoError(t, err)
		for _, item := range page.Items {
			assert.Equal(t, item.ID == big, item.IsFavorite, item.Title)
		}

		require.NoError(t, env.Service.UnsetFavorite(ctx, big))
		page, err = env.Service.ListChildren(ctx, model.RootID, model.ListOptions{})
		require.NoError(t, err)
		for _, item := range page.Items {
			assert.False(t, item.IsFavorite, item.Title)
		}
	})

	t.Run("errors", func(t *testing.T) {
		_, err := env.Service.ListChildren(ctx, big, model.ListOptions{})
		assert.ErrorIs(t, err, files.ErrInvalidOperation)

		opts := model.ListOptions{Sort: model.Sorting{Column: "title; DROP TABLE file_nodes"}}
		_, err = env.Service.ListChildren(ctx, model.RootID, opts)
		assert.ErrorIs(t, err, files.ErrInvalidOperation)

		_, err = env.Service.ListChildren(ctx, 9999, model.ListOptions{})
		assert.ErrorIs(t, err, files.ErrNotFound)
	})
}

func TestGetAncestors(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	docs, _, sub, b, _ := docsTree(t, env)

	refs, err := env.Service.GetAncestors(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []model.ParentRef{
		{ID: docs, Title: "Docs"},
		{ID: sub, Title: "Sub"},
		{ID: b, Title: "b.txt"},
	}, refs)

	refs, err = env.Service.GetAncestors(ctx, model.RootID)
	require.NoError(t, err)
	assert.Empty(t, refs)

	_, err = env.Service.GetAncestors(ctx, 9999)
	assert.ErrorIs(t, err, files.ErrNotFound)
}

func TestGetVersions(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	docs := mustFolder(t, env, model.RootID, "Docs")
	id := mustFile(t, env, docs, "a.txt", "1")
	mustFile(t, env, docs, "a.txt", "22")
	mustFile(t, env, docs, "a.txt", "333")

	refs, err := env.Service.GetVersions(ctx, id)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, int64(1), refs[0].Version)
	assert.Equal(t, int64(1), refs[0].Size)
	assert.Equal(t, int64(2), refs[1].Version)
	assert.Equal(t, int64(2), refs[1].Size)
	assert.Equal(t, int64(3), mustNode(t, env, id).Version)

	_, err = env.Service.GetVersions(ctx, docs)
	assert.ErrorIs(t, err, files.ErrInvalidOperation)

	_, err = env.Service.OpenVersion(ctx, id, 3)
	assert.ErrorIs(t, err, files.ErrNotFound, "the live version is not a stored version")
}

func TestRestoreVersion(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	docs := mustFolder(t, env, model.RootID, "Docs")
	id := mustFile(t, env, docs, "a.txt", "first")
	mustFile(t, env, docs, "a.txt", "second!")

	require.NoError(t, env.Service.RestoreVersion(ctx, id, 1))

	node := mustNode(t, env, id)
	assert.Equal(t, "first", readContent(t, env, id))
	assert.Equal(t, int64(3), node.Version)
	assert.Equal(t, int64(len("first")), node.Size)

	refs, err := env.Service.GetVersions(ctx, id)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, int64(2), refs[1].Version)
	assert.Equal(t, int64(len("second!")), refs[1].Size)

	rc, err := env.Service.OpenVersion(ctx, id, 2)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "second!", string(data), "replaced content is kept as a version")

	t.Run("missing version", func(t *testing.T) {
		assert.ErrorIs(t, env.Service.RestoreVersion(ctx, id, 3), files.ErrNotFound)
		assert.ErrorIs(t, env.Service.RestoreVersion(ctx, id, 99), files.ErrNotFound)
	})

	t.Run("folder", func(t *testing.T) {
		assert.ErrorIs(t, env.Service.RestoreVersion(ctx, docs, 1), files.ErrInvalidOperation)
	})

	t.Run("missing node", func(t *testing.T) {
		assert.ErrorIs(t, env.Service.RestoreVersion(ctx, 9999, 1), files.ErrNotFound)
	})

	t.Run("copy failure discards the snapshot", func(t *testing.T) {
		stored, err := env.Repo.GetVersions(ctx, id)
		require.NoError(t, err)
		boom := errors.New("disk full")
		env.FS.FailOn(fs.OpCopy, env.Paths.VersionPath(env.User.ID, stored[0].FileName), boom)
		defer env.FS.ClearFailures()

		require.ErrorIs(t, env.Service.RestoreVersion(ctx, id, 1), boom)
		assert.Equal(t, int64(3), mustNode(t, env, id).Version)
		assert.Equal(t, "first", readContent(t, env, id))
		refs, err := env.Service.GetVersions(ctx, id)
		require.NoError(t, err)
		assert.Len(t, refs, 2)

		env.FS.ClearFailures()
		require.NoError(t, env.Service.RestoreVersion(ctx, id, 2), "retry after failure")
		assert.Equal(t, "second!", readContent(t, env, id))
		assert.Equal(t, int64(4), mustNode(t, env, id).Version)
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	docs := mustFolder(t, env, model.RootID, "Docs")
	id := mustFile(t, env, docs, "a.txt", "content")

	rc, node, err := env.Service.Open(ctx, id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
	assert.Equal(t, "a.txt", node.Title)

	_, _, err = env.Service.Open(ctx, docs)
	assert.ErrorIs(t, err, files.ErrInvalidOperation)
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	docs, a, sub, b, _ := docsTree(t, env)

	require.NoError(t, env.Service.Rename(ctx, docs, "Papers"))

	assert.Equal(t, "Papers", mustNode(t, env, docs).Title)
	assert.Equal(t, "Papers", mustNode(t, env, docs).FilesystemPath)
	assert.Equal(t, "Papers/a.txt", mustNode(t, env, a).FilesystemPath)
	assert.Equal(t, "Papers/Sub", mustNode(t, env, sub).FilesystemPath)
	assert.Equal(t, "Papers/Sub/b.txt", mustNode(t, env, b).FilesystemPath)
	assert.Equal(t, "bravo", readContent(t, env, b))
	assert.False(t, env.FS.Exists(env.Abs("Docs")))

	require.NoError(t, env.Service.Rename(ctx, b, "beta.txt"))
	assert.Equal(t, "Papers/Sub/beta.txt", mustNode(t, env, b).FilesystemPath)
	assert.Equal(t, "bravo", readContent(t, env, b))

	t.Run("same title is a no-op", func(t *testing.T) {
		require.NoError(t, env.Service.Rename(ctx, a, "a.txt"))
	})

	t.Run("collision", func(t *testing.T) {
		assert.ErrorIs(t, env.Service.Rename(ctx, a, "Sub"), files.ErrConflict)
	})

	t.Run("reserved name at root", func(t *testing.T) {
		assert.ErrorIs(t, env.Service.Rename(ctx, docs, ".system"), files.ErrInvalidName)
	})

	t.Run("root", func(t *testing.T) {
		root := mustNode(t, env, model.RootID)
		assert.ErrorIs(t, env.Service.Rename(ctx, root.ID, "x"), files.ErrInvalidOperation)
	})

	t.Run("physical failure keeps catalog", func(t *testing.T) {
		boom := errors.New("busy")
		env.FS.FailOn(fs.OpMove, "", boom)
		defer env.FS.ClearFailures()

		require.ErrorIs(t, env.Service.Rename(ctx, docs, "Other"), boom)
		assert.Equal(t, "Papers/a.txt", mustNode(t, env, a).FilesystemPath)
	})
}

func TestFavorites(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	assert.ErrorIs(t, env.Service.SetFavorite(ctx, 9999), files.ErrNotFound)
	require.NoError(t, env.Service.UnsetFavorite(ctx, 9999), "unsetting is idempotent")
}

func TestUserIsolation(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	docs := mustFolder(t, env, model.RootID, "Docs")

	bob := env.AddUser(t, "bob")
	bobSvc := files.NewService(bob.ID, env.DB.Nodes(bob.ID), env.FS, env.Paths, files.NewNopLogger(), env.Clock, env.IDs)

	_, err := bobSvc.GetNode(ctx, docs)
	assert.ErrorIs(t, err, files.ErrNotFound)
	assert.ErrorIs(t, bobSvc.MoveToTrash(ctx, docs), files.ErrNotFound)

	// Same titles are fine across users.
	bobDocs, err := bobSvc.CreateFolder(ctx, model.RootID, "Docs")
	require.NoError(t, err)
	assert.True(t, env.FS.IsDir(env.Paths.AbsolutePath(bob.ID, &model.Node{FilesystemPath: "Docs"})))
	assert.NotEqual(t, docs, bobDocs)
}

// TestLifecycleScenario walks a folder through create, overwrite, merge
// copy and trash.
func TestLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	docs, err := env.Service.CreateFolder(ctx, model.RootID, "Docs")
	require.NoError(t, err)
	n := mustNode(t, env, docs)
	assert.Equal(t, int64(1), n.Version)
	assert.Zero(t, n.Size)
	assert.Equal(t, "Docs", n.FilesystemPath)

	a, err := env.Service.CreateFile(ctx, docs, "a.txt", strings.NewReader("first"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), mustNode(t, env, a).Version)

	again, err := env.Service.CreateFile(ctx, docs, "a.txt", strings.NewReader("second"))
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.Equal(t, int64(2), mustNode(t, env, a).Version)
	versions, err := env.Service.GetVersions(ctx, a)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, int64(1), versions[0].Version)

	backup := mustFolder(t, env, model.RootID, "Backup")
	backupDocs := mustFolder(t, env, backup, "Docs")
	mustFile(t, env, backupDocs, "other.txt", "other")

	require.NoError(t, env.Service.MoveOrCopy(ctx, []int64{docs}, backup, true))
	merged := childByTitle(t, env, backupDocs, "a.txt")
	assert.Equal(t, "second", readContent(t, env, merged.ID))
	childByTitle(t, env, backupDocs, "other.txt")
	assert.Equal(t, "second", readContent(t, env, a), "copy keeps the source")

	require.NoError(t, env.Service.MoveToTrash(ctx, docs))
	for _, id := range []int64{docs, a} {
		_, err := env.Service.GetNode(ctx, id)
		assert.ErrorIs(t, err, files.ErrNotFound)
	}
	trashed, err := env.Service.ListTrash(ctx)
	require.NoError(t, err)
	assert.Len(t, trashed, 2)
	assert.False(t, env.FS.Exists(env.Abs("Docs/a.txt")))
	assert.False(t, env.FS.Exists(env.Abs("Docs")))
}
