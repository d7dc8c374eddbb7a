package ocfl

import (
	"context"
	"os"

	"ocfl/internal/inventory"
	"ocfl/internal/ocflerr"
)

// CommitMutableHead promotes id's accumulated mutable-head revisions
// into a real immutable version, replacing the head revision's
// provisional metadata with info. It is a no-op error if id has no
// active mutable head.
func (r *Repository) CommitMutableHead(ctx context.Context, id string, info inventory.VersionInfo) (*VersionDetails, error) {
	var result *VersionDetails
	err := r.lock.DoInWriteLock(ctx, id, r.cfg.LockTimeout, func(ctx context.Context) error {
		if _, exists, err := r.engine.LatestMutableHeadRevision(ctx, id); err != nil {
			return err
		} else if !exists {
			return ocflerr.New(ocflerr.OcflState, "CommitMutableHead", id, "object has no active mutable head")
		}

		mutHead, err := r.engine.LoadInventory(ctx, id)
		if err != nil {
			return err
		}

		final := mutHead.Clone()
		ver, ok := final.Version(final.Head)
		if !ok {
			return ocflerr.New(ocflerr.CorruptObject, "CommitMutableHead", id, "mutable head inventory is missing its own head version")
		}
		ver.Created = r.clock.NowUTC()
		ver.Message = info.Message
		ver.User = info.User

		var oldInventory *inventory.Inventory
		if final.Head.Num > 1 {
			if root, err := r.engine.LoadInventoryVersion(ctx, id, final.Head.Previous()); err == nil {
				oldInventory = root
			}
		}

		scratch, err := r.scratchDir(id)
		if err != nil {
			return err
		}
		defer os.RemoveAll(scratch)

		if err := writeInventoryToStaging(final, scratch); err != nil {
			return err
		}

		if err := r.engine.CommitMutableHead(ctx, oldInventory, final, scratch); err != nil {
			return err
		}

		details := newVersionDetailsFromHead(final)
		result = &details
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PurgeMutableHead discards id's mutable head without affecting its
// published versions.
func (r *Repository) PurgeMutableHead(ctx context.Context, id string) error {
	return r.lock.DoInWriteLock(ctx, id, r.cfg.LockTimeout, func(ctx context.Context) error {
		return r.engine.PurgeMutableHead(ctx, id)
	})
}
