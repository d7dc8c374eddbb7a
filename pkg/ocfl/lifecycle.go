package ocfl

import (
	"context"
	"os"

	"ocfl/internal/inventory"
	"ocfl/internal/ocflerr"
	"ocfl/internal/storage"
)

// PurgeObject removes every trace of id from the repository. This is
// irreversible.
func (r *Repository) PurgeObject(ctx context.Context, id string) error {
	return r.lock.DoInWriteLock(ctx, id, r.cfg.LockTimeout, func(ctx context.Context) error {
		return r.engine.PurgeObject(ctx, id)
	})
}

// RollbackToVersion restores id's root inventory to that of v,
// deleting every later version directory. Any active mutable head is
// discarded along with them.
func (r *Repository) RollbackToVersion(ctx context.Context, id string, v inventory.VersionNum) error {
	return r.lock.DoInWriteLock(ctx, id, r.cfg.LockTimeout, func(ctx context.Context) error {
		return r.engine.RollbackToVersion(ctx, id, v)
	})
}

// ExportObject copies id's raw OCFL tree to destDir.
func (r *Repository) ExportObject(ctx context.Context, id, destDir string) error {
	return r.engine.ExportObject(ctx, id, destDir)
}

// ExportVersion copies one version of id's raw OCFL tree to destDir.
func (r *Repository) ExportVersion(ctx context.Context, id string, v inventory.VersionNum, destDir string) error {
	return r.engine.ExportVersion(ctx, id, v, destDir)
}

// ImportObject ingests a raw OCFL tree rooted at srcDir as a new
// object, validating it before publishing.
func (r *Repository) ImportObject(ctx context.Context, id, srcDir string) error {
	return r.lock.DoInWriteLock(ctx, id, r.cfg.LockTimeout, func(ctx context.Context) error {
		return r.engine.ImportObject(ctx, id, srcDir)
	})
}

// ImportVersion ingests the raw OCFL tree at srcDir when id does not
// exist yet, exactly as ImportObject does. It does not append a version
// to an existing object: for an existing id it returns OcflState and
// changes nothing.
func (r *Repository) ImportVersion(ctx context.Context, id, srcDir string) error {
	return r.lock.DoInWriteLock(ctx, id, r.cfg.LockTimeout, func(ctx context.Context) error {
		if exists, err := r.engine.ContainsObject(ctx, id); err != nil {
			return err
		} else if !exists {
			return r.engine.ImportObject(ctx, id, srcDir)
		}
		return ocflerr.New(ocflerr.OcflState, "ImportVersion", id,
			"appending a single version to an existing object is not supported by this storage engine; use PutObject or UpdateObject instead")
	})
}

// ReplicateVersionAsHead creates a new HEAD for id whose logical-path
// state equals that of v, recorded as a fresh version with info. This
// is how a caller reverts to an earlier state without losing the
// intervening history the way RollbackToVersion does.
func (r *Repository) ReplicateVersionAsHead(ctx context.Context, id string, v inventory.VersionNum, info inventory.VersionInfo) (*VersionDetails, error) {
	var result *VersionDetails
	err := r.lock.DoInWriteLock(ctx, id, r.cfg.LockTimeout, func(ctx context.Context) error {
		base, err := r.loadBase(ctx, id)
		if err != nil {
			return err
		}
		if base == nil {
			return ocflerr.New(ocflerr.NotFound, "ReplicateVersionAsHead", id, "object does not exist")
		}
		source, ok := base.Version(v)
		if !ok {
			return ocflerr.New(ocflerr.NotFound, "ReplicateVersionAsHead", id, "no such version: "+v.String())
		}

		scratch, err := r.scratchDir(id)
		if err != nil {
			return err
		}
		defer os.RemoveAll(scratch)

		u, err := r.newUpdater(base, id, scratch)
		if err != nil {
			return ocflerr.Wrap(ocflerr.OcflInput, "ReplicateVersionAsHead", id, err)
		}
		u.ClearState()
		for _, logicalPaths := range source.State {
			for _, logicalPath := range logicalPaths {
				if err := u.ReinstateFile(v, logicalPath, logicalPath); err != nil {
					return ocflerr.Wrap(ocflerr.OcflInput, "ReplicateVersionAsHead", id, err)
				}
			}
		}

		inv, err := u.BuildNewInventory(r.clock.NowUTC(), info)
		if err != nil {
			return ocflerr.Wrap(ocflerr.OcflInput, "ReplicateVersionAsHead", id, err)
		}
		if err := writeInventoryToStaging(inv, scratch); err != nil {
			return err
		}

		req := storage.NewVersionRequest{Inventory: inv, StagingDir: scratch, NewContentPaths: manifestContentPaths(base, inv)}
		if err := r.engine.StoreNewVersion(ctx, req); err != nil {
			return err
		}

		details := newVersionDetailsFromHead(inv)
		result = &details
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
