package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocfl/internal/digest"
	"ocfl/internal/inventory"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	inv := validInventory(t)

	raw, err := inventory.Marshal(inv)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\"id\": \"obj-1\"")

	got, err := inventory.Unmarshal(raw, "/objects/obj-1")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, inv.DigestAlgorithm, got.DigestAlgorithm)
	assert.Equal(t, inv.Head, got.Head)
	assert.Equal(t, "/objects/obj-1", got.ObjectRootPath())
	assert.Equal(t, inv.Manifest, got.Manifest)
}

func TestSidecarRoundTrip(t *testing.T) {
	content := inventory.SidecarContent("abc123")
	assert.Equal(t, "abc123\tinventory.json\n", string(content))

	got, err := inventory.ParseSidecar(content)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)
}

func TestParseSidecarToleratesSpaceSeparator(t *testing.T) {
	got, err := inventory.ParseSidecar([]byte("abc123 inventory.json\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)
}

func TestParseSidecarRejectsEmpty(t *testing.T) {
	_, err := inventory.ParseSidecar([]byte("  \n"))
	assert.Error(t, err)
}

func TestSidecarName(t *testing.T) {
	assert.Equal(t, "inventory.json.sha256", inventory.SidecarName(digest.SHA256))
	assert.Equal(t, "inventory.json.sha512", inventory.SidecarName(digest.SHA512))
}

func TestVersionNumStringAndParse(t *testing.T) {
	v := inventory.VersionNum{Num: 3}
	assert.Equal(t, "v3", v.String())

	padded := inventory.VersionNum{Num: 3, Padding: 4}
	assert.Equal(t, "v0003", padded.String())

	parsed, err := inventory.ParseVersionNum("v0003")
	require.NoError(t, err)
	assert.Equal(t, inventory.VersionNum{Num: 3, Padding: 4}, parsed)

	_, err = inventory.ParseVersionNum("v0")
	assert.Error(t, err)

	_, err = inventory.ParseVersionNum("notaversion")
	assert.Error(t, err)
}

func TestVersionNumNextAndPrevious(t *testing.T) {
	v := inventory.VersionNum{Num: 1}
	assert.Equal(t, inventory.VersionNum{Num: 2}, v.Next())
	assert.Equal(t, inventory.VersionNum{Num: 1}, v.Next().Previous())
	assert.Panics(t, func() { v.Previous() })
}

func TestResolveContentPathTieBreak(t *testing.T) {
	inv := validInventory(t)
	v1, _ := inv.Version(inventory.VersionNum{Num: 1})
	var dig string
	for d := range v1.State {
		dig = d
	}
	require.NotEmpty(t, dig)

	inv.Manifest[dig] = append(inv.Manifest[dig], "v1/content/z-earlier.txt")
	p, err := inv.ResolveContentPath(dig)
	require.NoError(t, err)
	assert.Equal(t, "v1/content/a.txt", p)
}

func TestResolveContentPathUnknownDigest(t *testing.T) {
	inv := validInventory(t)
	_, err := inv.ResolveContentPath("does-not-exist")
	assert.Error(t, err)
}
