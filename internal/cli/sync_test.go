package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/folio/internal/atomicfile"
	"github.com/lherron/folio/internal/bundle"
	"github.com/lherron/folio/internal/domain"
	"github.com/lherron/folio/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBundleFile(t *testing.T, path string, b *bundle.SyncBundle) {
	t.Helper()
	data, err := bundle.Canonical(b)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func testProject(id, title, updatedAt string) domain.Project {
	return domain.Project{
		ID: id, UserID: testUser, Title: title,
		CreatedAt: "2024-01-01T00:00:00.000Z", UpdatedAt: updatedAt,
	}
}

func TestSyncMerge_Files(t *testing.T) {
	dir := t.TempDir()
	local := bundle.Empty()
	local.Projects = append(local.Projects, testProject("p1", "Local title", "2024-03-01T10:00:00.000Z"))
	remoteBundle := bundle.Empty()
	remoteBundle.Projects = append(remoteBundle.Projects,
		testProject("p1", "Remote title", "2024-03-02T10:00:00.000Z"),
		testProject("p2", "Second", "2024-03-01T10:00:00.000Z"))
	writeBundleFile(t, filepath.Join(dir, "local.json"), local)
	writeBundleFile(t, filepath.Join(dir, "remote.json"), remoteBundle)

	out := filepath.Join(dir, "merged.json.gz")
	setFlag(t, &syncMergeOut, out)

	var stdout, stderr bytes.Buffer
	cmd := newTestCmd(&stdout)
	cmd.SetErr(&stderr)
	require.NoError(t, runSyncMerge(cmd, []string{filepath.Join(dir, "local.json"), filepath.Join(dir, "remote.json")}))

	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "1 conflict(s)")

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, raw[:2], "a .gz target is compressed")

	data, err := atomicfile.ReadFile(out)
	require.NoError(t, err)
	merged, err := bundle.Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, merged.Projects, 2)
	assert.Equal(t, "Remote title", merged.Projects[0].Title)
	assert.Equal(t, "p2", merged.Projects[1].ID)
}

func TestSyncMerge_StdoutIsCanonical(t *testing.T) {
	dir := t.TempDir()
	b := bundle.Empty()
	b.Projects = append(b.Projects, testProject("p1", "Novel", "2024-03-01T10:00:00.000Z"))
	writeBundleFile(t, filepath.Join(dir, "a.json"), b)
	writeBundleFile(t, filepath.Join(dir, "b.json"), bundle.Empty())
	setFlag(t, &syncMergeOut, "")

	var stdout bytes.Buffer
	require.NoError(t, runSyncMerge(newTestCmd(&stdout), []string{filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")}))

	want, err := bundle.Canonical(b)
	require.NoError(t, err)
	assert.Equal(t, string(want)+"\n", stdout.String())
}

func TestSyncMerge_MissingFile(t *testing.T) {
	var stdout bytes.Buffer
	err := runSyncMerge(newTestCmd(&stdout), []string{"/nonexistent/a.json", "/nonexistent/b.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent/a.json")
}

func TestSyncRun_SharedDirectory(t *testing.T) {
	app := setupTestApp(t)
	app.Config.RemoteDir = t.TempDir()
	p := createTestProject(t, app, "Novel")

	var out bytes.Buffer
	require.NoError(t, runSyncRun(app, newTestCmd(&out), nil))
	assert.Contains(t, out.String(), "✓ Synced "+testUser)
	assert.Contains(t, out.String(), "pushed:      true")

	pulled, err := remote.NewDir(app.Config.RemoteDir, nil).Pull(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, pulled.Projects, 1)
	assert.Equal(t, p.ID, pulled.Projects[0].ID)

	setFlag(t, &syncEventLimit, 5)
	out.Reset()
	require.NoError(t, runSyncStatus(app, newJSONCmd(t, &out), nil))
	var view syncStatusView
	decodeJSON(t, &out, &view)
	assert.NotEmpty(t, view.MergedRev)
	assert.False(t, view.Pending)
	require.Len(t, view.Recent, 1)

	out.Reset()
	require.NoError(t, runSyncDiff(app, newTestCmd(&out), nil))
	assert.Equal(t, "Local and remote bundles are identical.\n", out.String())
}

func TestSyncRun_NoRemote(t *testing.T) {
	app := setupTestApp(t)
	var out bytes.Buffer
	err := runSyncRun(app, newTestCmd(&out), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no remote configured")
}

func TestSyncStatus_NeverSynced(t *testing.T) {
	app := setupTestApp(t)
	createTestProject(t, app, "Novel")
	setFlag(t, &syncEventLimit, 5)

	var out bytes.Buffer
	require.NoError(t, runSyncStatus(app, newTestCmd(&out), nil))
	assert.True(t, strings.HasPrefix(out.String(), testUser+" has never synced\n"))
	assert.Contains(t, out.String(), "Local changes pending")
}

func TestSyncDiff_Entity(t *testing.T) {
	app := setupTestApp(t)
	app.Config.RemoteDir = t.TempDir()
	p := createTestProject(t, app, "Novel")

	remoteBundle := bundle.Empty()
	edited := p
	edited.Title = "Novel, second draft"
	remoteBundle.Projects = append(remoteBundle.Projects, edited)
	require.NoError(t, remote.NewDir(app.Config.RemoteDir, nil).Push(context.Background(), testUser, remoteBundle))

	setFlag(t, &syncDiffEntity, "project:"+p.ID)
	var out bytes.Buffer
	require.NoError(t, runSyncDiff(app, newTestCmd(&out), nil))
	assert.Contains(t, out.String(), `-  "title": "Novel",`)
	assert.Contains(t, out.String(), `+  "title": "Novel, second draft",`)

	setFlag(t, &syncDiffEntity, "project")
	assert.Error(t, runSyncDiff(app, newTestCmd(&out), nil))
}
