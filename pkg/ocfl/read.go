package ocfl

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"ocfl/internal/inventory"
	"ocfl/internal/ocflerr"
	"ocfl/internal/storage"
	"ocfl/internal/validate"
)

// GetObject materializes a version of id into outDir, which must not
// already exist. version is HEAD if nil.
func (r *Repository) GetObject(ctx context.Context, id string, version *inventory.VersionNum, outDir string) error {
	if _, err := os.Stat(outDir); err == nil {
		return ocflerr.New(ocflerr.OcflInput, "GetObject", id, "outDir already exists: "+outDir)
	} else if !os.IsNotExist(err) {
		return ocflerr.Wrap(ocflerr.OcflIO, "GetObject", id, err)
	}

	inv, err := r.engine.LoadInventory(ctx, id)
	if err != nil {
		return err
	}
	v := inv.Head
	if version != nil {
		v = *version
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "GetObject", id, err)
	}

	return r.engine.ReconstructObjectVersion(ctx, inv, v, func(logicalPath string) (io.WriteCloser, error) {
		dst := filepath.Join(outDir, filepath.FromSlash(logicalPath))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, err
		}
		return os.Create(dst)
	})
}

// DescribeObject returns id's full metadata: identity, digest
// algorithm, content directory, HEAD and every version's summary.
func (r *Repository) DescribeObject(ctx context.Context, id string) (*ObjectDetails, error) {
	inv, err := r.engine.LoadInventory(ctx, id)
	if err != nil {
		return nil, err
	}
	return newObjectDetails(inv), nil
}

// DescribeVersion returns the metadata for one version of id. version
// is HEAD if nil.
func (r *Repository) DescribeVersion(ctx context.Context, id string, version *inventory.VersionNum) (*VersionDetails, error) {
	inv, err := r.engine.LoadInventory(ctx, id)
	if err != nil {
		return nil, err
	}
	v := inv.Head
	if version != nil {
		v = *version
	}
	ver, ok := inv.Version(v)
	if !ok {
		return nil, ocflerr.New(ocflerr.NotFound, "DescribeVersion", id, "no such version: "+v.String())
	}
	details := newVersionDetails(v, ver)
	return &details, nil
}

// FileChangeHistory returns, in ascending version order, every version
// in which logicalPath's digest changed (including its introduction
// and any later removal, which shows as the path leaving the state).
func (r *Repository) FileChangeHistory(ctx context.Context, id, logicalPath string) ([]inventory.VersionNum, error) {
	inv, err := r.engine.LoadInventory(ctx, id)
	if err != nil {
		return nil, err
	}

	var history []inventory.VersionNum
	lastDigest := ""
	present := false
	for _, v := range inv.VersionNums() {
		ver, ok := inv.Version(v)
		if !ok {
			continue
		}
		dig, ok := digestOfLogicalPath(ver.State, logicalPath)
		switch {
		case ok && (!present || dig != lastDigest):
			history = append(history, v)
		case !ok && present:
			history = append(history, v)
		}
		lastDigest, present = dig, ok
	}
	return history, nil
}

func digestOfLogicalPath(state inventory.DigestMap, logicalPath string) (string, bool) {
	for dig, paths := range state {
		for _, p := range paths {
			if p == logicalPath {
				return dig, true
			}
		}
	}
	return "", false
}

// ListObjectIds enumerates every object in the repository, in sorted
// order. The engine scans the whole storage root before the Iterator
// is returned.
func (r *Repository) ListObjectIds(ctx context.Context) (storage.Iterator, error) {
	return r.engine.ListObjectIds(ctx)
}

// ValidateObject checks id's inventory (and, in Deep mode, every
// version's content) for internal consistency.
func (r *Repository) ValidateObject(ctx context.Context, id string, mode validate.Mode) (*validate.Report, error) {
	return validate.Validate(ctx, r.engine, id, mode)
}
