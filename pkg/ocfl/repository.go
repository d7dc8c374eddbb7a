// Package ocfl is the public API of an Oxford Common File Layout
// repository: create, update, read, validate and manage versioned
// objects backed by a pluggable storage.Engine.
package ocfl

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"ocfl/internal/clock"
	"ocfl/internal/digest"
	"ocfl/internal/inventory"
	"ocfl/internal/lock"
	"ocfl/internal/ocflerr"
	"ocfl/internal/storage"
)

const defaultLockTimeout = 30 * time.Second

// Repository is a handle onto one OCFL storage root. A single handle
// is safe for concurrent use by many goroutines; writes to distinct
// objects proceed fully in parallel, writes to the same object are
// linearized by Config.Lock.
type Repository struct {
	engine storage.Engine
	lock   lock.Lock
	clock  clock.Clock
	cfg    Config
}

// NewRepository builds a Repository from cfg, filling in defaults for
// everything the caller left unset: Lock defaults to an in-process
// MemoryLock, Clock to the system clock, DigestAlgorithm to sha512,
// ContentDirectory to "content", and LockTimeout to 30s.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Engine == nil {
		return nil, ocflerr.New(ocflerr.OcflInput, "NewRepository", "", "Engine must not be nil")
	}
	if cfg.WorkDirectory == "" {
		return nil, ocflerr.New(ocflerr.OcflInput, "NewRepository", "", "WorkDirectory must not be empty")
	}
	if err := os.MkdirAll(cfg.WorkDirectory, 0o755); err != nil {
		return nil, ocflerr.Wrap(ocflerr.OcflIO, "NewRepository", "", err)
	}

	if cfg.Lock == nil {
		cfg.Lock = lock.NewMemoryLock()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.SystemClock{}
	}
	if cfg.DigestAlgorithm == "" {
		cfg.DigestAlgorithm = digest.SHA512
	}
	if cfg.ContentDirectory == "" {
		cfg.ContentDirectory = inventory.DefaultContentDirectory
	}
	if cfg.Mapper == nil {
		cfg.Mapper = inventory.IdentityContentPathMapper
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = defaultLockTimeout
	}

	return &Repository{
		engine: cfg.Engine,
		lock:   cfg.Lock,
		clock:  cfg.Clock,
		cfg:    cfg,
	}, nil
}

// Close releases resources held by the underlying storage engine.
func (r *Repository) Close() error {
	return r.engine.Close()
}

// loadBase loads the current inventory for objectID, treating NotFound
// as "no object yet" (nil, nil) rather than an error, since both
// PutObject and UpdateObject may be creating a brand-new object.
func (r *Repository) loadBase(ctx context.Context, objectID string) (*inventory.Inventory, error) {
	inv, err := r.engine.LoadInventory(ctx, objectID)
	if err != nil {
		if ocflerr.OfKind(err, ocflerr.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

func (r *Repository) newUpdater(base *inventory.Inventory, objectID, scratchDir string) (*inventory.Updater, error) {
	return inventory.NewUpdater(base, inventory.UpdaterOptions{
		NewObjectID:      objectID,
		Algorithm:        r.cfg.DigestAlgorithm,
		ContentDirectory: r.cfg.ContentDirectory,
		ScratchDir:       scratchDir,
		Mapper:           r.cfg.Mapper,
	})
}

func (r *Repository) scratchDir(objectID string) (string, error) {
	dir := filepath.Join(r.cfg.WorkDirectory, fmt.Sprintf("%s-%s", sanitizeForPath(objectID), uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", ocflerr.Wrap(ocflerr.OcflIO, "scratchDir", objectID, err)
	}
	return dir, nil
}

func sanitizeForPath(id string) string {
	out := make([]rune, 0, len(id))
	for _, c := range id {
		switch {
		case c == '/' || c == '\\' || c == ':':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return "object"
	}
	if len(out) > 64 {
		out = out[:64]
	}
	return string(out)
}

// writeInventoryToStaging serializes inv into stagingDir/<head>/,
// mirroring what every storage.Engine.StoreNewVersion/StoreMutableHead
// caller must do before handing content off - the Updater itself never
// touches disk beyond staging content blobs.
func writeInventoryToStaging(inv *inventory.Inventory, stagingDir string) error {
	raw, err := inventory.Marshal(inv)
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "writeInventoryToStaging", inv.ID, err)
	}
	dig, err := digest.Sum(inv.DigestAlgorithm, bytes.NewReader(raw))
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "writeInventoryToStaging", inv.ID, err)
	}
	versionDir := filepath.Join(stagingDir, inv.Head.String())
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "writeInventoryToStaging", inv.ID, err)
	}
	if err := os.WriteFile(filepath.Join(versionDir, "inventory.json"), raw, 0o644); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "writeInventoryToStaging", inv.ID, err)
	}
	sidecar := filepath.Join(versionDir, inventory.SidecarName(inv.DigestAlgorithm))
	if err := os.WriteFile(sidecar, inventory.SidecarContent(dig), 0o644); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "writeInventoryToStaging", inv.ID, err)
	}
	return nil
}

// checkExpectedHead enforces an optimistic-concurrency precondition:
// if the caller told us which HEAD they read, and the object has
// since moved on, the write is refused rather than silently stacked
// on top of a version the caller never saw.
func checkExpectedHead(objectID string, base *inventory.Inventory, expected *inventory.VersionNum) error {
	if expected == nil {
		return nil
	}
	var actual inventory.VersionNum
	if base != nil {
		actual = base.Head
	}
	if actual != *expected {
		return ocflerr.New(ocflerr.ObjectOutOfSync, "commit", objectID,
			fmt.Sprintf("expected HEAD %s, found %s", expected, actual))
	}
	return nil
}
