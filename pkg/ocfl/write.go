package ocfl

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"ocfl/internal/digest"
	"ocfl/internal/inventory"
	"ocfl/internal/ocflerr"
	"ocfl/internal/storage"
)

func toDigestAlgorithms(names []string) []digest.Algorithm {
	if len(names) == 0 {
		return nil
	}
	out := make([]digest.Algorithm, len(names))
	for i, n := range names {
		out[i] = digest.Algorithm(n)
	}
	return out
}

// PutOptions configures PutObject.
type PutOptions struct {
	// ExpectedHead, if set, must match the object's current HEAD or the
	// commit is refused with ObjectOutOfSync.
	ExpectedHead *inventory.VersionNum
	// FixityAlgorithms additionally digests every new blob under these
	// algorithms and records the results in the fixity block; files whose
	// content is already in the manifest are not re-digested.
	FixityAlgorithms []string
	// Mutable stages the commit as a mutable-head revision instead of
	// an immutable version.
	Mutable bool
}

// UpdateOptions configures UpdateObject.
type UpdateOptions struct {
	ExpectedHead *inventory.VersionNum
	Mutable      bool
}

// PutObject replaces an object's entire logical-path state with the
// contents of sourceDir, creating a new version (or object, if id does
// not yet exist).
func (r *Repository) PutObject(ctx context.Context, id, sourceDir string, info inventory.VersionInfo, opts PutOptions) (*VersionDetails, error) {
	var result *VersionDetails
	err := r.lock.DoInWriteLock(ctx, id, r.cfg.LockTimeout, func(ctx context.Context) error {
		base, err := r.loadBase(ctx, id)
		if err != nil {
			return err
		}
		if err := checkExpectedHead(id, base, opts.ExpectedHead); err != nil {
			return err
		}

		scratch, err := r.scratchDir(id)
		if err != nil {
			return err
		}
		defer os.RemoveAll(scratch)

		u, err := r.newUpdater(base, id, scratch)
		if err != nil {
			return ocflerr.Wrap(ocflerr.OcflInput, "PutObject", id, err)
		}
		u.ClearState()

		addOpts := inventory.AddOptions{FixityAlgorithms: toDigestAlgorithms(opts.FixityAlgorithms)}

		var newContentPaths []string
		walkErr := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(sourceDir, path)
			if err != nil {
				return err
			}
			logicalPath := filepath.ToSlash(rel)
			addResult, err := u.AddFilePath(path, logicalPath, addOpts)
			if err != nil {
				return err
			}
			if addResult.IsNewBlob {
				newContentPaths = append(newContentPaths, addResult.ContentPath)
			}
			return nil
		})
		if walkErr != nil {
			return ocflerr.Wrap(ocflerr.OcflIO, "PutObject", id, walkErr)
		}

		inv, err := u.BuildNewInventory(r.clock.NowUTC(), info)
		if err != nil {
			return ocflerr.Wrap(ocflerr.OcflInput, "PutObject", id, err)
		}
		if err := writeInventoryToStaging(inv, scratch); err != nil {
			return err
		}

		req := storage.NewVersionRequest{Inventory: inv, StagingDir: scratch, NewContentPaths: newContentPaths}
		if opts.Mutable {
			revision, err := nextMutableRevision(ctx, r.engine, id)
			if err != nil {
				return err
			}
			if err := r.engine.StoreMutableHead(ctx, req, revision); err != nil {
				return err
			}
		} else if err := r.engine.StoreNewVersion(ctx, req); err != nil {
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

// UpdateObject invokes task with an ObjectUpdater seeded from the
// object's current state, then commits whatever task did as a new
// version. Regardless of whether task returns an error or panics, the
// scratch directory is cleaned up: a panic is recovered just long
// enough to clean up and is then re-raised, so a caller's programming
// error is never silently swallowed.
func (r *Repository) UpdateObject(ctx context.Context, id string, info inventory.VersionInfo, opts UpdateOptions, task func(*ObjectUpdater) error) (*VersionDetails, error) {
	var result *VersionDetails
	err := r.lock.DoInWriteLock(ctx, id, r.cfg.LockTimeout, func(ctx context.Context) error {
		base, err := r.loadBase(ctx, id)
		if err != nil {
			return err
		}
		if err := checkExpectedHead(id, base, opts.ExpectedHead); err != nil {
			return err
		}

		scratch, err := r.scratchDir(id)
		if err != nil {
			return err
		}
		cleaned := false
		cleanup := func() {
			if !cleaned {
				os.RemoveAll(scratch)
				cleaned = true
			}
		}
		defer func() {
			if p := recover(); p != nil {
				cleanup()
				panic(p)
			}
		}()

		u, err := r.newUpdater(base, id, scratch)
		if err != nil {
			cleanup()
			return ocflerr.Wrap(ocflerr.OcflInput, "UpdateObject", id, err)
		}

		if taskErr := task(&ObjectUpdater{u: u}); taskErr != nil {
			cleanup()
			return taskErr
		}

		inv, err := u.BuildNewInventory(r.clock.NowUTC(), info)
		if err != nil {
			cleanup()
			return ocflerr.Wrap(ocflerr.OcflInput, "UpdateObject", id, err)
		}
		if err := writeInventoryToStaging(inv, scratch); err != nil {
			cleanup()
			return err
		}

		req := storage.NewVersionRequest{Inventory: inv, StagingDir: scratch, NewContentPaths: nil}
		req.NewContentPaths = manifestContentPaths(base, inv)

		if opts.Mutable {
			revision, err := nextMutableRevision(ctx, r.engine, id)
			if err != nil {
				cleanup()
				return err
			}
			if err := r.engine.StoreMutableHead(ctx, req, revision); err != nil {
				cleanup()
				return err
			}
		} else if err := r.engine.StoreNewVersion(ctx, req); err != nil {
			cleanup()
			return err
		}
		cleanup()

		details := newVersionDetailsFromHead(inv)
		result = &details
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// manifestContentPaths returns the content paths inv's manifest has
// that base's did not, i.e. exactly the new blobs a commit must
// promote from staging into the object root.
func manifestContentPaths(base *inventory.Inventory, inv *inventory.Inventory) []string {
	known := map[string]bool{}
	if base != nil {
		for _, paths := range base.Manifest {
			for _, p := range paths {
				known[p] = true
			}
		}
	}
	var out []string
	for _, paths := range inv.Manifest {
		for _, p := range paths {
			if !known[p] {
				out = append(out, p)
			}
		}
	}
	return out
}

func newVersionDetailsFromHead(inv *inventory.Inventory) VersionDetails {
	ver, _ := inv.HeadVersion()
	return newVersionDetails(inv.Head, ver)
}

// nextMutableRevision computes the revision number to hand to
// StoreMutableHead: one past whatever is currently on disk, or r1 if
// no mutable head is active yet. The write is still under the
// object's lock, so this is race-free against other writers using
// this same Repository; StoreMutableHead's own ObjectOutOfSync check
// guards against an out-of-process writer racing it regardless.
func nextMutableRevision(ctx context.Context, engine storage.Engine, id string) (int, error) {
	latest, ok, err := engine.LatestMutableHeadRevision(ctx, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return latest + 1, nil
}
