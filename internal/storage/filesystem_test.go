package storage_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocfl/internal/digest"
	"ocfl/internal/inventory"
	"ocfl/internal/layout"
	"ocfl/internal/storage"
)

// buildAndStage runs an Updater over base (nil for a brand-new
// object), adding the given logical-path -> content map, and writes
// the resulting inventory.json/sidecar into stagingDir/<head>/ next to
// the staged content, mirroring what the repository facade does
// before calling Engine.StoreNewVersion.
func buildAndStage(t *testing.T, base *inventory.Inventory, objectID, stagingDir string, files map[string]string) (*inventory.Inventory, []string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(stagingDir, 0o755))

	u, err := inventory.NewUpdater(base, inventory.UpdaterOptions{
		NewObjectID: objectID,
		Algorithm:   digest.SHA256,
		ScratchDir:  stagingDir,
	})
	require.NoError(t, err)

	var newContentPaths []string
	for logicalPath, content := range files {
		result, err := u.AddFile(strings.NewReader(content), logicalPath, inventory.AddOptions{})
		require.NoError(t, err)
		if result.IsNewBlob {
			newContentPaths = append(newContentPaths, result.ContentPath)
		}
	}

	inv, err := u.BuildNewInventory(time.Now().UTC().Truncate(time.Second), inventory.VersionInfo{Message: "test commit"})
	require.NoError(t, err)

	raw, err := inventory.Marshal(inv)
	require.NoError(t, err)
	dig, err := digest.Sum(inv.DigestAlgorithm, bytes.NewReader(raw))
	require.NoError(t, err)

	versionDir := filepath.Join(stagingDir, inv.Head.String())
	require.NoError(t, os.WriteFile(filepath.Join(versionDir, "inventory.json"), raw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(versionDir, inventory.SidecarName(inv.DigestAlgorithm)), inventory.SidecarContent(dig), 0o644))

	return inv, newContentPaths
}

func newTestFilesystem(t *testing.T) *storage.Filesystem {
	t.Helper()
	root := t.TempDir()
	fs, err := storage.NewFilesystem(root, &layout.FlatLayout{})
	require.NoError(t, err)
	return fs
}

func TestFilesystemStoreAndLoadFirstVersion(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	staging := t.TempDir()

	inv, newPaths := buildAndStage(t, nil, "obj-1", staging, map[string]string{
		"a.txt": "hello world",
	})
	require.Len(t, newPaths, 1)

	err := fs.StoreNewVersion(ctx, storage.NewVersionRequest{
		Inventory:       inv,
		StagingDir:      staging,
		NewContentPaths: newPaths,
	})
	require.NoError(t, err)

	exists, err := fs.ContainsObject(ctx, "obj-1")
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := fs.LoadInventory(ctx, "obj-1")
	require.NoError(t, err)
	assert.Equal(t, "obj-1", loaded.ID)
	assert.Equal(t, inventory.VersionNum{Num: 1}, loaded.Head)
}

func TestFilesystemGetObjectStreamsVerifiesFixity(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	staging := t.TempDir()

	inv, newPaths := buildAndStage(t, nil, "obj-2", staging, map[string]string{
		"dir/a.txt": "payload one",
		"b.txt":     "payload two",
	})

	require.NoError(t, fs.StoreNewVersion(ctx, storage.NewVersionRequest{
		Inventory:       inv,
		StagingDir:      staging,
		NewContentPaths: newPaths,
	}))

	loaded, err := fs.LoadInventory(ctx, "obj-2")
	require.NoError(t, err)

	streams, err := fs.GetObjectStreams(ctx, loaded, inventory.VersionNum{Num: 1})
	require.NoError(t, err)
	require.Contains(t, streams, "dir/a.txt")
	require.Contains(t, streams, "b.txt")

	data, err := io.ReadAll(streams["dir/a.txt"])
	require.NoError(t, err)
	assert.Equal(t, "payload one", string(data))
	require.NoError(t, streams["dir/a.txt"].Close())
	require.NoError(t, streams["b.txt"].Close())
}

func TestFilesystemReconstructObjectVersion(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	staging := t.TempDir()

	inv, newPaths := buildAndStage(t, nil, "obj-3", staging, map[string]string{
		"one.txt": "content one",
		"two.txt": "content two",
	})
	require.NoError(t, fs.StoreNewVersion(ctx, storage.NewVersionRequest{
		Inventory:       inv,
		StagingDir:      staging,
		NewContentPaths: newPaths,
	}))

	loaded, err := fs.LoadInventory(ctx, "obj-3")
	require.NoError(t, err)

	destDir := t.TempDir()
	sink := func(logicalPath string) (io.WriteCloser, error) {
		full := filepath.Join(destDir, filepath.FromSlash(logicalPath))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, err
		}
		return os.Create(full)
	}

	require.NoError(t, fs.ReconstructObjectVersion(ctx, loaded, inventory.VersionNum{Num: 1}, sink))

	got, err := os.ReadFile(filepath.Join(destDir, "one.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content one", string(got))
}

func TestFilesystemSecondVersionAndRollback(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	staging1 := t.TempDir()
	inv1, newPaths1 := buildAndStage(t, nil, "obj-4", staging1, map[string]string{
		"file.txt": "version one content",
	})
	require.NoError(t, fs.StoreNewVersion(ctx, storage.NewVersionRequest{
		Inventory: inv1, StagingDir: staging1, NewContentPaths: newPaths1,
	}))

	loadedV1, err := fs.LoadInventory(ctx, "obj-4")
	require.NoError(t, err)

	staging2 := t.TempDir()
	inv2, newPaths2 := buildAndStage(t, loadedV1, "obj-4", staging2, map[string]string{
		"file.txt": "version two content",
	})
	require.NoError(t, fs.StoreNewVersion(ctx, storage.NewVersionRequest{
		Inventory: inv2, StagingDir: staging2, NewContentPaths: newPaths2,
	}))

	current, err := fs.LoadInventory(ctx, "obj-4")
	require.NoError(t, err)
	assert.Equal(t, inventory.VersionNum{Num: 2}, current.Head)

	require.NoError(t, fs.RollbackToVersion(ctx, "obj-4", inventory.VersionNum{Num: 1}))

	afterRollback, err := fs.LoadInventory(ctx, "obj-4")
	require.NoError(t, err)
	assert.Equal(t, inventory.VersionNum{Num: 1}, afterRollback.Head)

	root, err := fs.ObjectRootPath("obj-4")
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(root, "v2"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFilesystemPurgeObject(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	staging := t.TempDir()

	inv, newPaths := buildAndStage(t, nil, "obj-5", staging, map[string]string{
		"a.txt": "content",
	})
	require.NoError(t, fs.StoreNewVersion(ctx, storage.NewVersionRequest{
		Inventory: inv, StagingDir: staging, NewContentPaths: newPaths,
	}))

	require.NoError(t, fs.PurgeObject(ctx, "obj-5"))

	exists, err := fs.ContainsObject(ctx, "obj-5")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFilesystemListObjectIds(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	for _, id := range []string{"obj-a", "obj-b", "obj-c"} {
		staging := t.TempDir()
		inv, newPaths := buildAndStage(t, nil, id, staging, map[string]string{
			"f.txt": "x-" + id,
		})
		require.NoError(t, fs.StoreNewVersion(ctx, storage.NewVersionRequest{
			Inventory: inv, StagingDir: staging, NewContentPaths: newPaths,
		}))
	}

	it, err := fs.ListObjectIds(ctx)
	require.NoError(t, err)

	var ids []string
	for {
		id, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		ids = append(ids, id)
	}
	assert.ElementsMatch(t, []string{"obj-a", "obj-b", "obj-c"}, ids)
}

func TestFilesystemStoreNewVersionRejectsExistingVersionDir(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()
	staging := t.TempDir()

	inv, newPaths := buildAndStage(t, nil, "obj-6", staging, map[string]string{
		"a.txt": "content",
	})
	require.NoError(t, fs.StoreNewVersion(ctx, storage.NewVersionRequest{
		Inventory: inv, StagingDir: staging, NewContentPaths: newPaths,
	}))

	staging2 := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(staging2, "v1"), 0o755))
	err := fs.StoreNewVersion(ctx, storage.NewVersionRequest{
		Inventory:  inv,
		StagingDir: staging2,
	})
	assert.Error(t, err)
}
