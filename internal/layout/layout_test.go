package layout_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocfl/internal/layout"
)

func TestFlatLayout(t *testing.T) {
	l := &layout.FlatLayout{}
	require.NoError(t, l.Init(nil))

	p, err := l.Map("my-object-1")
	require.NoError(t, err)
	assert.Equal(t, "my-object-1", p)

	_, err = l.Map("a/b")
	assert.Error(t, err)
}

func TestHashedNTupleLayoutDefaults(t *testing.T) {
	l := &layout.HashedNTupleLayout{}
	require.NoError(t, l.Init(nil))

	p1, err := l.Map("object-a")
	require.NoError(t, err)
	p2, err := l.Map("object-a")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	p3, _ := l.Map("object-b")
	assert.NotEqual(t, p1, p3)
	assert.Regexp(t, `^[0-9a-f]{3}/[0-9a-f]{3}/[0-9a-f]{3}/[0-9a-f]{64}$`, p1)
}

func TestNTupleOmitPrefixLayout(t *testing.T) {
	l := &layout.NTupleOmitPrefixLayout{}
	cfg, err := json.Marshal(map[string]any{
		"delimiter":      ":",
		"tupleSize":      3,
		"numberOfTuples": 2,
		"zeroPadding":    "left",
	})
	require.NoError(t, err)
	require.NoError(t, l.Init(cfg))

	p, err := l.Map("namespace:12345")
	require.NoError(t, err)
	assert.Equal(t, "123/45/namespace:12345", p)

	_, err = l.Map("no-delimiter-here")
	assert.Error(t, err)
}

func TestNTupleOmitPrefixLayoutShortSectionPadding(t *testing.T) {
	l := &layout.NTupleOmitPrefixLayout{}
	cfg, err := json.Marshal(map[string]any{
		"delimiter":      ":",
		"tupleSize":      3,
		"numberOfTuples": 2,
		"zeroPadding":    "left",
	})
	require.NoError(t, err)
	require.NoError(t, l.Init(cfg))

	p, err := l.Map("ns:7")
	require.NoError(t, err)
	assert.Equal(t, "000/007/7", p)
}

func TestPairTreeLayout(t *testing.T) {
	l := &layout.PairTreeLayout{}
	require.NoError(t, l.Init(nil))

	p, err := l.Map("ab123cd")
	require.NoError(t, err)
	assert.Equal(t, "ab/12/3c/d/ab123cd", p)
}
