package storage

import (
	"fmt"
	"path"

	"ocfl/internal/digest"
	"ocfl/internal/inventory"
)

// ObjectNamasteContent is the NAMASTE tag file OCFL objects carry at
// their root, e.g. "0=ocfl_object_1.1".
const ObjectNamasteContent = "ocfl_object_1.1"

// ObjectNamasteName returns the NAMASTE file name for an object root.
func ObjectNamasteName() string {
	return "0=" + ObjectNamasteContent
}

// RootNamasteContent is the NAMASTE tag file the storage root itself
// carries.
const RootNamasteContent = "ocfl_1.1"

// RootNamasteName returns the NAMASTE file name for the storage root.
func RootNamasteName() string {
	return "0=" + RootNamasteContent
}

const (
	inventoryFileName        = "inventory.json"
	mutableHeadExtensionName = "extensions/0005-mutable-head"
)

// InventoryPath joins dir with the inventory file name.
func InventoryPath(dir string) string {
	return path.Join(dir, inventoryFileName)
}

// InventorySidecarPath joins dir with the algorithm-specific sidecar
// file name for inv.
func InventorySidecarPath(dir string, algorithm digest.Algorithm) string {
	return path.Join(dir, inventory.SidecarName(algorithm))
}

// VersionPath joins an object root with a version directory name.
func VersionPath(objectRoot string, v inventory.VersionNum) string {
	return path.Join(objectRoot, v.String())
}

// ContentPath joins an object root with a manifest content path.
func ContentPath(objectRoot, contentPath string) string {
	return path.Join(objectRoot, contentPath)
}

// MutableHeadRoot returns the extension directory holding the mutable
// head, relative to the object root.
func MutableHeadRoot(objectRoot string) string {
	return path.Join(objectRoot, mutableHeadExtensionName)
}

// MutableHeadVersionPath returns the mutable head's in-progress
// version directory ("head").
func MutableHeadVersionPath(objectRoot string) string {
	return path.Join(MutableHeadRoot(objectRoot), "head")
}

// MutableHeadInventoryPath returns the path of the mutable head's own
// inventory.json.
func MutableHeadInventoryPath(objectRoot string) string {
	return InventoryPath(MutableHeadVersionPath(objectRoot))
}

// MutableHeadInventorySidecarPath returns the mutable head inventory's
// sidecar path.
func MutableHeadInventorySidecarPath(objectRoot string, algorithm digest.Algorithm) string {
	return InventorySidecarPath(MutableHeadVersionPath(objectRoot), algorithm)
}

// MutableHeadRevisionsPath returns the directory holding zero-byte
// revision markers r1, r2, ....
func MutableHeadRevisionsPath(objectRoot string) string {
	return path.Join(MutableHeadRoot(objectRoot), "revisions")
}

// MutableHeadRevisionMarker returns the path of one revision's marker.
func MutableHeadRevisionMarker(objectRoot string, revision int) string {
	return path.Join(MutableHeadRevisionsPath(objectRoot), fmt.Sprintf("r%d", revision))
}

// RootSidecarBackupName returns the file name used to stash a copy of
// the root inventory's sidecar inside the mutable head extension
// directory, for ensureRootObjectHasNotChanged comparisons.
func RootSidecarBackupName(algorithm digest.Algorithm) string {
	return "root-" + inventory.SidecarName(algorithm)
}
