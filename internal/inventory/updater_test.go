package inventory_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocfl/internal/digest"
	"ocfl/internal/inventory"
)

func newTestUpdater(t *testing.T, base *inventory.Inventory) *inventory.Updater {
	t.Helper()
	u, err := inventory.NewUpdater(base, inventory.UpdaterOptions{
		NewObjectID: "urn:example:1",
		Algorithm:   digest.SHA256,
		ScratchDir:  t.TempDir(),
	})
	require.NoError(t, err)
	return u
}

func TestUpdaterBuildsFirstVersion(t *testing.T) {
	u := newTestUpdater(t, nil)

	res, err := u.AddFile(strings.NewReader("hello"), "a.txt", inventory.AddOptions{})
	require.NoError(t, err)
	assert.True(t, res.IsNewBlob)
	assert.Equal(t, "v1/content/a.txt", res.ContentPath)

	inv, err := u.BuildNewInventory(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), inventory.VersionInfo{
		Message: "initial commit",
		User:    &inventory.User{Name: "tester"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, inv.Head.Num)
	v1, ok := inv.Version(inventory.VersionNum{Num: 1})
	require.True(t, ok)
	assert.Contains(t, v1.State, res.Digest)
	assert.Equal(t, []string{"a.txt"}, v1.State[res.Digest])
}

func TestUpdaterDedupsIdenticalContent(t *testing.T) {
	u := newTestUpdater(t, nil)

	r1, err := u.AddFile(strings.NewReader("same bytes"), "a.txt", inventory.AddOptions{})
	require.NoError(t, err)
	r2, err := u.AddFile(strings.NewReader("same bytes"), "b.txt", inventory.AddOptions{})
	require.NoError(t, err)

	assert.True(t, r1.IsNewBlob)
	assert.False(t, r2.IsNewBlob)
	assert.Equal(t, r1.Digest, r2.Digest)
	assert.Equal(t, r1.ContentPath, r2.ContentPath)

	inv, err := u.BuildNewInventory(time.Now(), inventory.VersionInfo{Message: "m"})
	require.NoError(t, err)
	assert.Len(t, inv.Manifest[r1.Digest], 1)
}

func TestUpdaterSecondVersionCarriesForwardState(t *testing.T) {
	u := newTestUpdater(t, nil)
	_, err := u.AddFile(strings.NewReader("v1 content"), "a.txt", inventory.AddOptions{})
	require.NoError(t, err)
	base, err := u.BuildNewInventory(time.Now(), inventory.VersionInfo{Message: "v1"})
	require.NoError(t, err)

	u2, err := inventory.NewUpdater(base, inventory.UpdaterOptions{ScratchDir: t.TempDir()})
	require.NoError(t, err)
	_, err = u2.AddFile(strings.NewReader("v2 content"), "b.txt", inventory.AddOptions{})
	require.NoError(t, err)

	inv2, err := u2.BuildNewInventory(time.Now(), inventory.VersionInfo{Message: "v2"})
	require.NoError(t, err)

	assert.Equal(t, 2, inv2.Head.Num)
	v2, ok := inv2.Version(inventory.VersionNum{Num: 2})
	require.True(t, ok)
	assert.Len(t, v2.State, 2)
	_, hasV1 := inv2.Version(inventory.VersionNum{Num: 1})
	assert.True(t, hasV1)
}

func TestUpdaterRemoveFile(t *testing.T) {
	u := newTestUpdater(t, nil)
	_, err := u.AddFile(strings.NewReader("content"), "a.txt", inventory.AddOptions{})
	require.NoError(t, err)
	base, err := u.BuildNewInventory(time.Now(), inventory.VersionInfo{Message: "v1"})
	require.NoError(t, err)

	u2, err := inventory.NewUpdater(base, inventory.UpdaterOptions{ScratchDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, u2.RemoveFile("a.txt"))

	inv2, err := u2.BuildNewInventory(time.Now(), inventory.VersionInfo{Message: "v2"})
	require.NoError(t, err)

	v2, _ := inv2.Version(inventory.VersionNum{Num: 2})
	assert.Empty(t, v2.State)
	// content stays reachable through v1's manifest entry
	assert.NotEmpty(t, inv2.Manifest)
}

func TestUpdaterRenameFile(t *testing.T) {
	u := newTestUpdater(t, nil)
	res, err := u.AddFile(strings.NewReader("content"), "a.txt", inventory.AddOptions{})
	require.NoError(t, err)
	require.NoError(t, u.RenameFile("a.txt", "b.txt"))

	inv, err := u.BuildNewInventory(time.Now(), inventory.VersionInfo{Message: "v1"})
	require.NoError(t, err)

	v1, _ := inv.Version(inventory.VersionNum{Num: 1})
	assert.Equal(t, []string{"b.txt"}, v1.State[res.Digest])
}

func TestUpdaterReinstateFile(t *testing.T) {
	u := newTestUpdater(t, nil)
	res, err := u.AddFile(strings.NewReader("v1 content"), "a.txt", inventory.AddOptions{})
	require.NoError(t, err)
	base, err := u.BuildNewInventory(time.Now(), inventory.VersionInfo{Message: "v1"})
	require.NoError(t, err)

	u2, err := inventory.NewUpdater(base, inventory.UpdaterOptions{ScratchDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, u2.RemoveFile("a.txt"))
	v2, err := u2.BuildNewInventory(time.Now(), inventory.VersionInfo{Message: "v2"})
	require.NoError(t, err)

	u3, err := inventory.NewUpdater(v2, inventory.UpdaterOptions{ScratchDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, u3.ReinstateFile(inventory.VersionNum{Num: 1}, "a.txt", "a-restored.txt"))
	v3, err := u3.BuildNewInventory(time.Now(), inventory.VersionInfo{Message: "v3"})
	require.NoError(t, err)

	ver3, _ := v3.Version(inventory.VersionNum{Num: 3})
	assert.Equal(t, []string{"a-restored.txt"}, ver3.State[res.Digest])
}

func TestUpdaterClearStateForPutObject(t *testing.T) {
	u := newTestUpdater(t, nil)
	_, err := u.AddFile(strings.NewReader("v1 content"), "a.txt", inventory.AddOptions{})
	require.NoError(t, err)
	base, err := u.BuildNewInventory(time.Now(), inventory.VersionInfo{Message: "v1"})
	require.NoError(t, err)

	u2, err := inventory.NewUpdater(base, inventory.UpdaterOptions{ScratchDir: t.TempDir()})
	require.NoError(t, err)
	u2.ClearState()
	_, err = u2.AddFile(strings.NewReader("replacement"), "z.txt", inventory.AddOptions{})
	require.NoError(t, err)

	inv2, err := u2.BuildNewInventory(time.Now(), inventory.VersionInfo{Message: "v2"})
	require.NoError(t, err)

	v2, _ := inv2.Version(inventory.VersionNum{Num: 2})
	assert.Len(t, v2.State, 1)
}

func TestUpdaterAddFileWithFixity(t *testing.T) {
	u := newTestUpdater(t, nil)
	res, err := u.AddFile(strings.NewReader("content"), "a.txt", inventory.AddOptions{
		FixityAlgorithms: []digest.Algorithm{digest.MD5},
	})
	require.NoError(t, err)

	inv, err := u.BuildNewInventory(time.Now(), inventory.VersionInfo{Message: "v1"})
	require.NoError(t, err)

	require.Contains(t, inv.Fixity, string(digest.MD5))
	md5Digest, err := digest.Sum(digest.MD5, strings.NewReader("content"))
	require.NoError(t, err)
	assert.Equal(t, []string{res.ContentPath}, inv.Fixity[string(digest.MD5)][md5Digest])
}
