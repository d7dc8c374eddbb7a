package ocfl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocfl/internal/inventory"
	"ocfl/internal/layout"
	"ocfl/internal/ocflerr"
	"ocfl/internal/storage"
	"ocfl/pkg/ocfl"
)

func newTestRepository(t *testing.T) *ocfl.Repository {
	t.Helper()
	fs, err := storage.NewFilesystem(t.TempDir(), &layout.FlatLayout{})
	require.NoError(t, err)

	repo, err := ocfl.NewRepository(ocfl.NewConfig(
		ocfl.WithEngine(fs),
		ocfl.WithWorkDirectory(t.TempDir()),
	))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func writeSourceTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func TestPutObjectCreatesFirstVersion(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	src := writeSourceTree(t, map[string]string{"a.txt": "hello", "dir/b.txt": "world"})
	details, err := repo.PutObject(ctx, "obj-1", src, inventory.VersionInfo{Message: "first"}, ocfl.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, inventory.VersionNum{Num: 1}, details.Number)
	assert.ElementsMatch(t, []string{"a.txt", "dir/b.txt"}, details.Files)

	desc, err := repo.DescribeObject(ctx, "obj-1")
	require.NoError(t, err)
	assert.Equal(t, "obj-1", desc.ID)
	assert.Equal(t, inventory.VersionNum{Num: 1}, desc.Head)
}

func TestPutObjectSecondVersionDedupsUnchangedContent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	src1 := writeSourceTree(t, map[string]string{"a.txt": "same", "b.txt": "one"})
	_, err := repo.PutObject(ctx, "obj-2", src1, inventory.VersionInfo{Message: "v1"}, ocfl.PutOptions{})
	require.NoError(t, err)

	src2 := writeSourceTree(t, map[string]string{"a.txt": "same", "b.txt": "two"})
	details, err := repo.PutObject(ctx, "obj-2", src2, inventory.VersionInfo{Message: "v2"}, ocfl.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, inventory.VersionNum{Num: 2}, details.Number)

	history, err := repo.FileChangeHistory(ctx, "obj-2", "b.txt")
	require.NoError(t, err)
	assert.Equal(t, []inventory.VersionNum{{Num: 1}, {Num: 2}}, history)

	history, err = repo.FileChangeHistory(ctx, "obj-2", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []inventory.VersionNum{{Num: 1}}, history)
}

func TestUpdateObjectAppliesMutations(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	src := writeSourceTree(t, map[string]string{"keep.txt": "keep", "old.txt": "old"})
	_, err := repo.PutObject(ctx, "obj-3", src, inventory.VersionInfo{Message: "v1"}, ocfl.PutOptions{})
	require.NoError(t, err)

	details, err := repo.UpdateObject(ctx, "obj-3", inventory.VersionInfo{Message: "v2"}, ocfl.UpdateOptions{},
		func(u *ocfl.ObjectUpdater) error {
			if err := u.RemoveFile("old.txt"); err != nil {
				return err
			}
			return u.RenameFile("keep.txt", "renamed.txt")
		})
	require.NoError(t, err)
	assert.Equal(t, inventory.VersionNum{Num: 2}, details.Number)
	assert.ElementsMatch(t, []string{"renamed.txt"}, details.Files)
}

func TestUpdateObjectPanicPropagatesAndLeavesHeadUnchanged(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	src := writeSourceTree(t, map[string]string{"a.txt": "hi"})
	_, err := repo.PutObject(ctx, "obj-4", src, inventory.VersionInfo{Message: "v1"}, ocfl.PutOptions{})
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = repo.UpdateObject(ctx, "obj-4", inventory.VersionInfo{Message: "v2"}, ocfl.UpdateOptions{},
			func(u *ocfl.ObjectUpdater) error {
				panic("boom")
			})
	})

	desc, err := repo.DescribeObject(ctx, "obj-4")
	require.NoError(t, err)
	assert.Equal(t, inventory.VersionNum{Num: 1}, desc.Head)
}

func TestPutObjectRejectsStaleExpectedHead(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	src := writeSourceTree(t, map[string]string{"a.txt": "hi"})
	_, err := repo.PutObject(ctx, "obj-5", src, inventory.VersionInfo{Message: "v1"}, ocfl.PutOptions{})
	require.NoError(t, err)

	stale := inventory.VersionNum{Num: 0}
	_, err = repo.PutObject(ctx, "obj-5", src, inventory.VersionInfo{Message: "v2"}, ocfl.PutOptions{ExpectedHead: &stale})
	require.Error(t, err)
	assert.True(t, ocflerr.OfKind(err, ocflerr.ObjectOutOfSync))
}

func TestGetObjectMaterializesHead(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	src := writeSourceTree(t, map[string]string{"a.txt": "hello", "nested/b.txt": "world"})
	_, err := repo.PutObject(ctx, "obj-6", src, inventory.VersionInfo{Message: "v1"}, ocfl.PutOptions{})
	require.NoError(t, err)

	outDir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, repo.GetObject(ctx, "obj-6", nil, outDir))

	a, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(a))
	b, err := os.ReadFile(filepath.Join(outDir, "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))
}

func TestRollbackToVersionRemovesLaterVersions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	src1 := writeSourceTree(t, map[string]string{"a.txt": "v1"})
	_, err := repo.PutObject(ctx, "obj-7", src1, inventory.VersionInfo{Message: "v1"}, ocfl.PutOptions{})
	require.NoError(t, err)
	src2 := writeSourceTree(t, map[string]string{"a.txt": "v2"})
	_, err = repo.PutObject(ctx, "obj-7", src2, inventory.VersionInfo{Message: "v2"}, ocfl.PutOptions{})
	require.NoError(t, err)

	require.NoError(t, repo.RollbackToVersion(ctx, "obj-7", inventory.VersionNum{Num: 1}))

	desc, err := repo.DescribeObject(ctx, "obj-7")
	require.NoError(t, err)
	assert.Equal(t, inventory.VersionNum{Num: 1}, desc.Head)
}

func TestReplicateVersionAsHeadCreatesNewVersionWithOldState(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	src1 := writeSourceTree(t, map[string]string{"a.txt": "v1"})
	_, err := repo.PutObject(ctx, "obj-8", src1, inventory.VersionInfo{Message: "v1"}, ocfl.PutOptions{})
	require.NoError(t, err)
	src2 := writeSourceTree(t, map[string]string{"a.txt": "v2"})
	_, err = repo.PutObject(ctx, "obj-8", src2, inventory.VersionInfo{Message: "v2"}, ocfl.PutOptions{})
	require.NoError(t, err)

	details, err := repo.ReplicateVersionAsHead(ctx, "obj-8", inventory.VersionNum{Num: 1}, inventory.VersionInfo{Message: "revert"})
	require.NoError(t, err)
	assert.Equal(t, inventory.VersionNum{Num: 3}, details.Number)

	outDir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, repo.GetObject(ctx, "obj-8", nil, outDir))
	data, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestPurgeObjectRemovesEverything(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	src := writeSourceTree(t, map[string]string{"a.txt": "hi"})
	_, err := repo.PutObject(ctx, "obj-9", src, inventory.VersionInfo{Message: "v1"}, ocfl.PutOptions{})
	require.NoError(t, err)

	require.NoError(t, repo.PurgeObject(ctx, "obj-9"))

	_, err = repo.DescribeObject(ctx, "obj-9")
	require.Error(t, err)
	assert.True(t, ocflerr.OfKind(err, ocflerr.NotFound))
}

func TestMutableHeadCommitPromotesToImmutableVersion(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	src1 := writeSourceTree(t, map[string]string{"a.txt": "v1"})
	_, err := repo.PutObject(ctx, "obj-10", src1, inventory.VersionInfo{Message: "v1"}, ocfl.PutOptions{})
	require.NoError(t, err)

	src2 := writeSourceTree(t, map[string]string{"a.txt": "mutated"})
	_, err = repo.PutObject(ctx, "obj-10", src2, inventory.VersionInfo{Message: "revision 1"}, ocfl.PutOptions{Mutable: true})
	require.NoError(t, err)

	desc, err := repo.DescribeObject(ctx, "obj-10")
	require.NoError(t, err)
	assert.Equal(t, inventory.VersionNum{Num: 2}, desc.Head)

	final, err := repo.CommitMutableHead(ctx, "obj-10", inventory.VersionInfo{Message: "squashed"})
	require.NoError(t, err)
	assert.Equal(t, inventory.VersionNum{Num: 2}, final.Number)

	outDir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, repo.GetObject(ctx, "obj-10", nil, outDir))
	data, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "mutated", string(data))
}

func TestCommitMutableHeadErrorsWithoutActiveHead(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	src := writeSourceTree(t, map[string]string{"a.txt": "hi"})
	_, err := repo.PutObject(ctx, "obj-11", src, inventory.VersionInfo{Message: "v1"}, ocfl.PutOptions{})
	require.NoError(t, err)

	_, err = repo.CommitMutableHead(ctx, "obj-11", inventory.VersionInfo{Message: "squashed"})
	require.Error(t, err)
	assert.True(t, ocflerr.OfKind(err, ocflerr.OcflState))
}

func TestExportThenImportReproducesTree(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	src := writeSourceTree(t, map[string]string{"a.txt": "hello", "dir/b.txt": "world"})
	_, err := repo.PutObject(ctx, "obj-12", src, inventory.VersionInfo{Message: "v1"}, ocfl.PutOptions{})
	require.NoError(t, err)

	exportDir := filepath.Join(t.TempDir(), "export")
	require.NoError(t, repo.ExportObject(ctx, "obj-12", exportDir))

	require.NoError(t, repo.ImportObject(ctx, "obj-12-copy", exportDir))

	desc, err := repo.DescribeObject(ctx, "obj-12-copy")
	require.NoError(t, err)
	assert.Equal(t, inventory.VersionNum{Num: 1}, desc.Head)
}

func TestListObjectIdsEnumeratesRepository(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, id := range []string{"list-a", "list-b"} {
		src := writeSourceTree(t, map[string]string{"a.txt": id})
		_, err := repo.PutObject(ctx, id, src, inventory.VersionInfo{Message: "v1"}, ocfl.PutOptions{})
		require.NoError(t, err)
	}

	iter, err := repo.ListObjectIds(ctx)
	require.NoError(t, err)

	var found []string
	for {
		id, ok, err := iter.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		found = append(found, id)
	}
	assert.ElementsMatch(t, []string{"list-a", "list-b"}, found)
}
