package files_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"hs-go/internal/model"
	"hs-go/internal/testutil"
)

func mustFolder(t *testing.T, env *testutil.Env, parentID int64, name string) int64 {
	t.Helper()
	id, err := env.Service.CreateFolder(context.Background(), parentID, name)
	require.NoError(t, err, "CreateFolder(%d, %q)", parentID, name)
	return id
}

func mustFile(t *testing.T, env *testutil.Env, parentID int64, name, content string) int64 {
	t.Helper()
	id, err := env.Service.CreateFile(context.Background(), parentID, name, strings.NewReader(content))
	require.NoError(t, err, "CreateFile(%d, %q)", parentID, name)
	return id
}

func mustNode(t *testing.T, env *testutil.Env, id int64) *model.Node {
	t.Helper()
	n, err := env.Service.GetNode(context.Background(), id)
	require.NoError(t, err, "GetNode(%d)", id)
	return n
}

func readContent(t *testing.T, env *testutil.Env, id int64) string {
	t.Helper()
	rc, _, err := env.Service.Open(context.Background(), id)
	require.NoError(t, err, "Open(%d)", id)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func childByTitle(t *testing.T, env *testutil.Env, parentID int64, title string) *model.Node {
	t.Helper()
	n, err := env.Repo.GetNodeByTitle(context.Background(), parentID, title)
	require.NoError(t, err)
	require.NotNil(t, n, "no child %q under %d", title, parentID)
	return n
}
