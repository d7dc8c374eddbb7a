package validate_test

import (
	"context"
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
	"ocfl/internal/validate"
)

func buildAndStore(t *testing.T, fs *storage.Filesystem, objectID string, files map[string]string) *inventory.Inventory {
	t.Helper()
	staging := t.TempDir()

	u, err := inventory.NewUpdater(nil, inventory.UpdaterOptions{
		NewObjectID: objectID,
		Algorithm:   digest.SHA256,
		ScratchDir:  staging,
	})
	require.NoError(t, err)

	var newPaths []string
	for logicalPath, content := range files {
		result, err := u.AddFile(strings.NewReader(content), logicalPath, inventory.AddOptions{})
		require.NoError(t, err)
		if result.IsNewBlob {
			newPaths = append(newPaths, result.ContentPath)
		}
	}

	inv, err := u.BuildNewInventory(time.Now().UTC().Truncate(time.Second), inventory.VersionInfo{Message: "initial"})
	require.NoError(t, err)

	raw, err := inventory.Marshal(inv)
	require.NoError(t, err)
	dig, err := digest.Sum(inv.DigestAlgorithm, strings.NewReader(string(raw)))
	require.NoError(t, err)

	versionDir := filepath.Join(staging, inv.Head.String())
	require.NoError(t, os.WriteFile(filepath.Join(versionDir, "inventory.json"), raw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(versionDir, inventory.SidecarName(inv.DigestAlgorithm)), inventory.SidecarContent(dig), 0o644))

	require.NoError(t, fs.StoreNewVersion(context.Background(), storage.NewVersionRequest{
		Inventory:       inv,
		StagingDir:      staging,
		NewContentPaths: newPaths,
	}))

	return inv
}

func TestValidateShallowValidObject(t *testing.T) {
	fs, err := storage.NewFilesystem(t.TempDir(), &layout.FlatLayout{})
	require.NoError(t, err)
	buildAndStore(t, fs, "obj-1", map[string]string{"a.txt": "hello"})

	report, err := validate.Validate(context.Background(), fs, "obj-1", validate.Shallow)
	require.NoError(t, err)
	assert.True(t, report.Valid())
	assert.Empty(t, report.Issues)
}

func TestValidateDeepValidObject(t *testing.T) {
	fs, err := storage.NewFilesystem(t.TempDir(), &layout.FlatLayout{})
	require.NoError(t, err)
	buildAndStore(t, fs, "obj-2", map[string]string{"a.txt": "hello", "b.txt": "world"})

	report, err := validate.Validate(context.Background(), fs, "obj-2", validate.Deep)
	require.NoError(t, err)
	assert.True(t, report.Valid())
}

func TestValidateDeepDetectsCorruptedContent(t *testing.T) {
	fs, err := storage.NewFilesystem(t.TempDir(), &layout.FlatLayout{})
	require.NoError(t, err)
	buildAndStore(t, fs, "obj-3", map[string]string{"a.txt": "hello"})

	root, err := fs.ObjectRootPath("obj-3")
	require.NoError(t, err)
	contentFile := filepath.Join(root, "v1", "content", "a.txt")
	require.NoError(t, os.WriteFile(contentFile, []byte("tampered content"), 0o644))

	report, err := validate.Validate(context.Background(), fs, "obj-3", validate.Deep)
	require.NoError(t, err)
	assert.False(t, report.Valid())

	found := false
	for _, issue := range report.Issues {
		if issue.Fatal && strings.Contains(issue.Message, "fixity") {
			found = true
		}
	}
	assert.True(t, found, "expected a fatal fixity issue, got %+v", report.Issues)
}

func TestValidateReportsMissingObject(t *testing.T) {
	fs, err := storage.NewFilesystem(t.TempDir(), &layout.FlatLayout{})
	require.NoError(t, err)

	report, err := validate.Validate(context.Background(), fs, "does-not-exist", validate.Shallow)
	require.NoError(t, err)
	assert.False(t, report.Valid())
}
