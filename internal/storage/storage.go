// Package storage implements the two storage-engine backends OCFL
// repositories can be built on: a filesystem tree and an S3-compatible
// object store. Both satisfy Engine, so pkg/ocfl never branches on
// which one it is talking to.
package storage

import (
	"context"
	"io"

	"ocfl/internal/inventory"
)

// ObjectExists on a partial write is intentionally not part of this
// package's public surface; callers observe existence only through
// LoadInventory returning NotFound or a populated inventory.

// FileSink receives one logical path's bytes while reconstructing a
// version, e.g. as a file under an export directory.
type FileSink func(logicalPath string) (io.WriteCloser, error)

// FileSource supplies one logical path's bytes while committing a new
// version, e.g. reading a file from a staging directory.
type FileSource func(logicalPath string) (io.ReadCloser, error)

// NewVersionRequest bundles everything StoreNewVersion needs: the
// fully-built inventory (whose Head is the version being created) and
// a way to open each newly staged content path relative to the
// staging directory.
type NewVersionRequest struct {
	Inventory  *inventory.Inventory
	StagingDir string
	// NewContentPaths lists the content-relative paths (as recorded
	// in Inventory.Manifest) that are new in this version and must be
	// promoted from StagingDir into the object root.
	NewContentPaths []string
}

// Engine is the storage-engine contract every backend implements. It
// operates purely in terms of inventories, content paths and logical
// paths; it has no notion of the public repository API's DTOs.
type Engine interface {
	// ObjectRootPath returns the storage-relative root directory for
	// objectID, as computed by the configured layout.
	ObjectRootPath(objectID string) (string, error)

	// ContainsObject reports whether an object root already exists.
	ContainsObject(ctx context.Context, objectID string) (bool, error)

	// LoadInventory loads and verifies the current inventory for
	// objectID (mutable head if present, else the root inventory).
	// Returns a NotFound *ocflerr.Error if the object does not exist.
	LoadInventory(ctx context.Context, objectID string) (*inventory.Inventory, error)

	// LoadInventoryVersion loads the version-scoped inventory,
	// exactly as it was published for that version.
	LoadInventoryVersion(ctx context.Context, objectID string, v inventory.VersionNum) (*inventory.Inventory, error)

	// StoreNewVersion publishes an immutable version.
	StoreNewVersion(ctx context.Context, req NewVersionRequest) error

	// LatestMutableHeadRevision reports the highest revision number
	// currently stored under the object's mutable head, if one is
	// active. Callers use this to compute the next revision to pass to
	// StoreMutableHead.
	LatestMutableHeadRevision(ctx context.Context, objectID string) (revision int, exists bool, err error)

	// StoreMutableHead appends a mutable-head revision.
	StoreMutableHead(ctx context.Context, req NewVersionRequest, revision int) error

	// CommitMutableHead promotes the accumulated mutable-head
	// revisions to a real immutable version.
	CommitMutableHead(ctx context.Context, oldInventory, newInventory *inventory.Inventory, stagingDir string) error

	// PurgeMutableHead discards the object's mutable head without
	// affecting its published versions.
	PurgeMutableHead(ctx context.Context, objectID string) error

	// GetObjectStreams opens every logical path in the requested
	// version for reading, verifying fixity as each stream is
	// consumed.
	GetObjectStreams(ctx context.Context, inv *inventory.Inventory, v inventory.VersionNum) (map[string]io.ReadCloser, error)

	// ReconstructObjectVersion materializes a full version's content
	// into sink.
	ReconstructObjectVersion(ctx context.Context, inv *inventory.Inventory, v inventory.VersionNum, sink FileSink) error

	// RollbackToVersion restores the root inventory to that of v,
	// deleting later version directories.
	RollbackToVersion(ctx context.Context, objectID string, v inventory.VersionNum) error

	// PurgeObject removes every trace of the object. Irreversible.
	PurgeObject(ctx context.Context, objectID string) error

	// ExportObject copies the object's raw OCFL tree to destDir.
	ExportObject(ctx context.Context, objectID string, destDir string) error

	// ExportVersion copies one version's raw OCFL tree to destDir.
	ExportVersion(ctx context.Context, objectID string, v inventory.VersionNum, destDir string) error

	// ImportObject ingests a raw OCFL tree rooted at srcDir as a new
	// object, after validating it.
	ImportObject(ctx context.Context, objectID string, srcDir string) error

	// ListObjectIds enumerates every object in the repository through
	// an Iterator. Both engines collect and sort the IDs up front; the
	// scan is not lazy.
	ListObjectIds(ctx context.Context) (Iterator, error)

	// Close releases any held resources (connections, worker pools).
	Close() error
}

// Iterator yields object IDs one at a time.
type Iterator interface {
	Next() (string, bool, error)
}
