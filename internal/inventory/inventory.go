// Package inventory implements the OCFL inventory data model: the
// content-addressed manifest describing an object's complete version
// history, its invariants, and the transactional builder used to
// produce the next inventory from a set of mutations.
package inventory

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"ocfl/internal/digest"
)

// OCFLVersion identifies the OCFL specification version this library
// implements.
const OCFLVersion = "https://ocfl.io/1.1/spec/"

// DefaultContentDirectory is used when an object does not override it.
const DefaultContentDirectory = "content"

// DigestMap maps a content digest to the set of paths (logical or
// content, depending on context) that carry that digest. Paths are
// kept in insertion order for state maps and are otherwise sorted on
// demand, so JSON output (which sorts map keys but not slice values)
// stays stable as long as callers append in a deterministic order.
type DigestMap map[string][]string

// SortedDigests returns the digests of m in sorted order, useful for
// deterministic iteration.
func (m DigestMap) SortedDigests() []string {
	out := make([]string, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of m.
func (m DigestMap) Clone() DigestMap {
	out := make(DigestMap, len(m))
	for d, paths := range m {
		cp := make([]string, len(paths))
		copy(cp, paths)
		out[d] = cp
	}
	return out
}

// User identifies who created a version.
type User struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Version is one committed snapshot of an object's logical-path to
// digest mapping.
type Version struct {
	Created time.Time `json:"created"`
	Message string    `json:"message,omitempty"`
	User    *User     `json:"user,omitempty"`
	State   DigestMap `json:"state"`
}

// Clone returns a deep copy of v.
func (v *Version) Clone() *Version {
	cp := &Version{
		Created: v.Created,
		Message: v.Message,
		State:   v.State.Clone(),
	}
	if v.User != nil {
		u := *v.User
		cp.User = &u
	}
	return cp
}

// VersionNum is a 1-based OCFL version number, rendered as "vN" or,
// for a padded object, "v00N".
type VersionNum struct {
	Num     int
	Padding int // 0 means unpadded
}

// String renders the version number in its object-scoped form.
func (v VersionNum) String() string {
	if v.Padding == 0 {
		return fmt.Sprintf("v%d", v.Num)
	}
	return fmt.Sprintf("v%0*d", v.Padding, v.Num)
}

// Next returns the successor version number, preserving padding.
func (v VersionNum) Next() VersionNum {
	return VersionNum{Num: v.Num + 1, Padding: v.Padding}
}

// Previous returns the predecessor version number. It panics if v is v1.
func (v VersionNum) Previous() VersionNum {
	if v.Num <= 1 {
		panic("inventory: v1 has no previous version")
	}
	return VersionNum{Num: v.Num - 1, Padding: v.Padding}
}

var versionNumPattern = regexp.MustCompile(`^v(0*)([1-9][0-9]*)$`)

// ParseVersionNum parses a directory-style version name such as "v3"
// or "v0003".
func ParseVersionNum(s string) (VersionNum, error) {
	m := versionNumPattern.FindStringSubmatch(s)
	if m == nil {
		return VersionNum{}, fmt.Errorf("inventory: invalid version number %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return VersionNum{}, fmt.Errorf("inventory: invalid version number %q: %w", s, err)
	}
	padding := 0
	if len(m[1]) > 0 {
		padding = len(m[1]) + len(m[2])
	}
	return VersionNum{Num: n, Padding: padding}, nil
}

// Inventory is the authoritative, immutable-once-built description of
// one object's complete version history.
type Inventory struct {
	ID                string               `json:"id"`
	Type              string               `json:"type"`
	DigestAlgorithm   digest.Algorithm     `json:"digestAlgorithm"`
	Head              VersionNum           `json:"-"`
	HeadStr           string               `json:"head"`
	ContentDirectory  string               `json:"contentDirectory,omitempty"`
	Manifest          DigestMap            `json:"manifest"`
	Fixity            map[string]DigestMap `json:"fixity,omitempty"`
	Versions          map[string]*Version  `json:"versions"`
	PaddingWidth      int                  `json:"-"`
	objectRootPath    string
	currentDigest     string
	previousDigest    string
}

// ObjectRootPath returns the transient storage location of this
// object, set when the inventory is loaded from or about to be stored
// into a repository.
func (inv *Inventory) ObjectRootPath() string { return inv.objectRootPath }

// SetObjectRootPath records where this object lives in the storage layer.
func (inv *Inventory) SetObjectRootPath(p string) { inv.objectRootPath = p }

// CurrentDigest returns the digest of this inventory's own JSON
// serialization as most recently observed on disk.
func (inv *Inventory) CurrentDigest() string { return inv.currentDigest }

// SetCurrentDigest records the digest of this inventory's own
// serialization, e.g. right after writing it to storage.
func (inv *Inventory) SetCurrentDigest(d string) {
	inv.previousDigest = inv.currentDigest
	inv.currentDigest = d
}

// PreviousDigest returns the digest this inventory had before its most
// recent on-disk update, if any.
func (inv *Inventory) PreviousDigest() string { return inv.previousDigest }

// ResolveContentDirectory returns the configured content directory
// name, or the default if unset.
func (inv *Inventory) ResolveContentDirectory() string {
	if inv.ContentDirectory == "" {
		return DefaultContentDirectory
	}
	return inv.ContentDirectory
}

// VersionNums returns every version number from v1 to Head, in order.
func (inv *Inventory) VersionNums() []VersionNum {
	out := make([]VersionNum, 0, inv.Head.Num)
	for i := 1; i <= inv.Head.Num; i++ {
		out = append(out, VersionNum{Num: i, Padding: inv.PaddingWidth})
	}
	return out
}

// Version looks up a version by number.
func (inv *Inventory) Version(v VersionNum) (*Version, bool) {
	ver, ok := inv.Versions[v.String()]
	return ver, ok
}

// HeadVersion returns the version at Head.
func (inv *Inventory) HeadVersion() (*Version, bool) {
	return inv.Version(inv.Head)
}

// ResolveContentPath implements the deterministic tie-break rule for
// dereferencing a digest on read: the lexicographically-smallest
// content path recorded for the digest in the earliest version whose
// state referenced it.
func (inv *Inventory) ResolveContentPath(dig string) (string, error) {
	paths, ok := inv.Manifest[dig]
	if !ok || len(paths) == 0 {
		return "", fmt.Errorf("inventory: no manifest entry for digest %s", dig)
	}
	if len(paths) == 1 {
		return paths[0], nil
	}

	earliest, ok := inv.earliestVersionContaining(dig)
	if !ok {
		sorted := append([]string(nil), paths...)
		sort.Strings(sorted)
		return sorted[0], nil
	}

	prefix := earliest.String() + "/"
	var candidates []string
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		candidates = append([]string(nil), paths...)
	}
	sort.Strings(candidates)
	return candidates[0], nil
}

func (inv *Inventory) earliestVersionContaining(dig string) (VersionNum, bool) {
	for i := 1; i <= inv.Head.Num; i++ {
		v := VersionNum{Num: i, Padding: inv.PaddingWidth}
		ver, ok := inv.Version(v)
		if !ok {
			continue
		}
		if _, has := ver.State[dig]; has {
			return v, true
		}
	}
	return VersionNum{}, false
}

// DigestForContentPath returns the digest that indexes contentPath in
// the manifest, if any.
func (inv *Inventory) DigestForContentPath(contentPath string) (string, bool) {
	for d, paths := range inv.Manifest {
		for _, p := range paths {
			if p == contentPath {
				return d, true
			}
		}
	}
	return "", false
}

// Clone returns a deep copy of inv, safe for a builder to mutate.
func (inv *Inventory) Clone() *Inventory {
	cp := &Inventory{
		ID:               inv.ID,
		Type:             inv.Type,
		DigestAlgorithm:  inv.DigestAlgorithm,
		Head:             inv.Head,
		HeadStr:          inv.HeadStr,
		ContentDirectory: inv.ContentDirectory,
		Manifest:         inv.Manifest.Clone(),
		PaddingWidth:     inv.PaddingWidth,
		objectRootPath:   inv.objectRootPath,
		currentDigest:    inv.currentDigest,
		previousDigest:   inv.previousDigest,
	}
	if inv.Fixity != nil {
		cp.Fixity = make(map[string]DigestMap, len(inv.Fixity))
		for algo, m := range inv.Fixity {
			cp.Fixity[algo] = m.Clone()
		}
	}
	cp.Versions = make(map[string]*Version, len(inv.Versions))
	for k, v := range inv.Versions {
		cp.Versions[k] = v.Clone()
	}
	return cp
}
