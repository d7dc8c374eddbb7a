package digest

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSumKnownVectors(t *testing.T) {
	t.Parallel()

	sum, err := Sum(SHA256, strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}

func TestFixityCheckingReaderSuccess(t *testing.T) {
	t.Parallel()

	content := []byte("world")
	sum, err := Sum(SHA256, bytes.NewReader(content))
	require.NoError(t, err)

	r, err := NewFixityCheckingReader(io.NopCloser(bytes.NewReader(content)), SHA256, sum)
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestFixityCheckingReaderMismatch(t *testing.T) {
	t.Parallel()

	content := []byte("world")
	r, err := NewFixityCheckingReader(io.NopCloser(bytes.NewReader(content)), SHA256, "deadbeef")
	require.NoError(t, err)

	_, err = io.ReadAll(r)
	require.Error(t, err)
	var fixityErr *FixityError
	require.ErrorAs(t, err, &fixityErr)
}

func TestFixityCheckingReaderCloseBeforeEOFDoesNotFail(t *testing.T) {
	t.Parallel()

	content := []byte("this is a longer stream than one read")
	r, err := NewFixityCheckingReader(io.NopCloser(bytes.NewReader(content)), SHA256, "deadbeef")
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = r.Read(buf)
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestValidateLogicalPath(t *testing.T) {
	t.Parallel()

	valid := []string{"a.txt", "dir/b.txt", "a/b/c"}
	for _, p := range valid {
		require.NoErrorf(t, ValidateLogicalPath(p), "path %q should be valid", p)
	}

	invalid := []string{"", "/a.txt", "a.txt/", "../a.txt", "a/../b", "a//b", "a\x00b", "a\\b"}
	for _, p := range invalid {
		require.Errorf(t, ValidateLogicalPath(p), "path %q should be invalid", p)
	}
}
