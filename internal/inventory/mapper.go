package inventory

import (
	"fmt"
	"strings"
)

// ContentPathMapper computes the relative path (beneath
// vN/<contentDirectory>/) a new blob should be stored at, given its
// digest and the logical path it was added under. Implementations
// need not produce a unique path; the updater appends a numeric
// suffix on collision.
type ContentPathMapper func(dig, logicalPath string) string

// IdentityContentPathMapper stores content at the same relative path
// as its logical path - the default, and the most human-readable
// layout on disk.
func IdentityContentPathMapper(_ string, logicalPath string) string {
	return logicalPath
}

// FlattenContentPathMapper replaces path separators with underscores,
// avoiding directory nesting inside the content directory.
func FlattenContentPathMapper(_ string, logicalPath string) string {
	return strings.ReplaceAll(logicalPath, "/", "_")
}

// HashedContentPathMapper stores content under a path derived purely
// from its digest, in tupled form (e.g. "ab/cd/abcdef..."), useful
// when logical paths carry information that should not be exposed on
// disk (or are simply too long).
func HashedContentPathMapper(tupleSize, tupleCount int) ContentPathMapper {
	return func(dig, _ string) string {
		var parts []string
		rest := dig
		for i := 0; i < tupleCount && len(rest) >= tupleSize; i++ {
			parts = append(parts, rest[:tupleSize])
			rest = rest[tupleSize:]
		}
		parts = append(parts, dig)
		return strings.Join(parts, "/")
	}
}

// uniqueContentPath appends a numeric suffix to candidate until it no
// longer collides with an already-used content path.
func uniqueContentPath(candidate string, used map[string]bool) string {
	if !used[candidate] {
		return candidate
	}
	ext := ""
	base := candidate
	if idx := strings.LastIndex(candidate, "."); idx > strings.LastIndex(candidate, "/") && idx >= 0 {
		base, ext = candidate[:idx], candidate[idx:]
	}
	for i := 1; ; i++ {
		attempt := fmt.Sprintf("%s-%d%s", base, i, ext)
		if !used[attempt] {
			return attempt
		}
	}
}
