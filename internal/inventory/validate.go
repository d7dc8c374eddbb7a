package inventory

import (
	"fmt"
	"strings"
)

// ValidationMode selects how thoroughly Validate checks an inventory.
type ValidationMode int

const (
	// Shallow checks only in-memory consistency (invariants #1-5).
	Shallow ValidationMode = iota
	// Deep additionally requires a content existence checker, see
	// ValidateDeep.
	Deep
)

// ContentExistsFunc reports whether a content path is present in
// storage with the expected digest. Deep validation is parameterized
// on this so the inventory package does not depend on the storage
// package.
type ContentExistsFunc func(contentPath, expectedDigest string) error

// Validate checks invariants #1-5 of the inventory model:
//
//  1. every digest referenced from a version's state has a manifest entry
//  2. every manifest content path begins with "vN/<contentDirectory>/"
//     for a known version N
//  3. versions run v1..Head with no gaps, and use one padding width
//  4. (append-only) is enforced by the updater, not re-checked here
//  5. DigestAlgorithm is fixed - nothing to check on a single snapshot
func Validate(inv *Inventory) error {
	if inv.ID == "" {
		return fmt.Errorf("inventory: id must not be empty")
	}
	if !inv.DigestAlgorithm.Valid() {
		return fmt.Errorf("inventory: unsupported digestAlgorithm %q", inv.DigestAlgorithm)
	}
	if inv.Head.Num < 1 {
		return fmt.Errorf("inventory: head must be >= v1")
	}

	if err := validateVersionSequence(inv); err != nil {
		return err
	}

	contentDir := inv.ResolveContentDirectory()
	for d, paths := range inv.Manifest {
		if len(paths) == 0 {
			return fmt.Errorf("inventory: manifest entry for digest %s has no content paths", d)
		}
		for _, p := range paths {
			if err := validateManifestPath(p, contentDir, inv); err != nil {
				return err
			}
		}
	}

	for verName, ver := range inv.Versions {
		for d := range ver.State {
			if _, ok := inv.Manifest[d]; !ok {
				return fmt.Errorf("inventory: version %s state references digest %s absent from manifest", verName, d)
			}
		}
	}

	return nil
}

func validateVersionSequence(inv *Inventory) error {
	parsed := versionNumsFromKeys(inv.Versions)
	if len(parsed) != len(inv.Versions) {
		return fmt.Errorf("inventory: versions map contains a key that is not a valid version number")
	}

	padding := -1
	for name, num := range parsed {
		if padding == -1 {
			padding = num.Padding
		} else if num.Padding != padding {
			return fmt.Errorf("inventory: mixed version number padding widths (%q vs earlier width %d)", name, padding)
		}
	}

	if len(inv.Versions) != inv.Head.Num {
		return fmt.Errorf("inventory: versions map has %d entries but head is v%d", len(inv.Versions), inv.Head.Num)
	}

	for i := 1; i <= inv.Head.Num; i++ {
		v := VersionNum{Num: i, Padding: padding}
		if _, ok := inv.Versions[v.String()]; !ok {
			return fmt.Errorf("inventory: missing version v%d (versions must run v1..head with no gaps)", i)
		}
	}

	inv.PaddingWidth = padding
	inv.Head.Padding = padding

	return nil
}

func versionNumsFromKeys(versions map[string]*Version) map[string]VersionNum {
	out := make(map[string]VersionNum, len(versions))
	for k := range versions {
		if num, err := ParseVersionNum(k); err == nil {
			out[k] = num
		}
	}
	return out
}

func validateManifestPath(p, contentDir string, inv *Inventory) error {
	parts := strings.SplitN(p, "/", 3)
	if len(parts) < 3 {
		return fmt.Errorf("inventory: content path %q is not of the form vN/%s/...", p, contentDir)
	}
	if parts[1] != contentDir {
		return fmt.Errorf("inventory: content path %q does not use content directory %q", p, contentDir)
	}
	if _, err := ParseVersionNum(parts[0]); err != nil {
		return fmt.Errorf("inventory: content path %q has invalid version segment: %w", p, err)
	}
	if _, ok := inv.Versions[parts[0]]; !ok {
		return fmt.Errorf("inventory: content path %q refers to unknown version %q", p, parts[0])
	}
	return nil
}
