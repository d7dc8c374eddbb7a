package ocfl

import (
	"io"

	"ocfl/internal/inventory"
)

// ObjectUpdater is passed to the callback given to UpdateObject. It
// wraps the internal inventory builder so callers mutate an object's
// logical-path state without importing an internal package.
type ObjectUpdater struct {
	u *inventory.Updater
}

// AddFile digests src, stages it if its content is new, and records
// logicalPath in the version under construction.
func (o *ObjectUpdater) AddFile(src io.Reader, logicalPath string, opts inventory.AddOptions) (inventory.AddResult, error) {
	return o.u.AddFile(src, logicalPath, opts)
}

// AddFilePath is like AddFile but reads directly from a path already
// on the local filesystem.
func (o *ObjectUpdater) AddFilePath(srcPath, logicalPath string, opts inventory.AddOptions) (inventory.AddResult, error) {
	return o.u.AddFilePath(srcPath, logicalPath, opts)
}

// RemoveFile removes logicalPath from the version under construction.
// The underlying blob remains reachable from earlier versions.
func (o *ObjectUpdater) RemoveFile(logicalPath string) error {
	return o.u.RemoveFile(logicalPath)
}

// RenameFile moves a logical path to a new name without touching content.
func (o *ObjectUpdater) RenameFile(src, dst string) error {
	return o.u.RenameFile(src, dst)
}

// ReinstateFile restores a logical path as it existed in an earlier
// version, without re-staging content.
func (o *ObjectUpdater) ReinstateFile(version inventory.VersionNum, src, dst string) error {
	return o.u.ReinstateFile(version, src, dst)
}

// ClearState empties the version under construction, the building
// block PutObject uses to implement whole-state replacement.
func (o *ObjectUpdater) ClearState() {
	o.u.ClearState()
}
