package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	"ocfl/internal/digest"
	"ocfl/internal/inventory"
	"ocfl/internal/layout"
	"ocfl/internal/ocflerr"
)

// Filesystem is the Engine implementation backed by a local (or
// network-mounted) directory tree: version promotion by directory
// rename, inventory swap via write-temp-then-rename.
type Filesystem struct {
	root   string
	layout layout.Layout
}

// NewFilesystem opens (and, if empty, initializes) a storage root at
// root using l to map object IDs to directories. It also deletes any
// orphaned "*.tmp" staging artefacts left behind by a crashed commit.
func NewFilesystem(root string, l layout.Layout) (*Filesystem, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create storage root %s: %w", root, err)
	}

	fs := &Filesystem{root: root, layout: l}

	if err := fs.ensureRootNamaste(); err != nil {
		return nil, err
	}
	if err := fs.ensureRootLayoutDoc(); err != nil {
		return nil, err
	}
	if err := fs.recoverOrphans(); err != nil {
		return nil, err
	}

	return fs, nil
}

func (f *Filesystem) ensureRootNamaste() error {
	namaste := filepath.Join(f.root, RootNamasteName())
	if _, err := os.Stat(namaste); err == nil {
		return nil
	}
	return os.WriteFile(namaste, []byte(RootNamasteContent+"\n"), 0o644)
}

// ocflLayoutDoc mirrors the on-disk shape of ocfl_layout.json, which
// names the storage layout extension so a repository can be reopened
// without the caller re-specifying it.
type ocflLayoutDoc struct {
	Extension   string `json:"extension"`
	Description string `json:"description,omitempty"`
}

func (f *Filesystem) ensureRootLayoutDoc() error {
	path := filepath.Join(f.root, "ocfl_layout.json")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	raw, err := json.MarshalIndent(ocflLayoutDoc{
		Extension:   f.layout.Name(),
		Description: f.layout.Describe(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal ocfl_layout.json: %w", err)
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

func (f *Filesystem) recoverOrphans() error {
	return filepath.Walk(f.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if strings.HasSuffix(name, ".tmp") || name == "inventory.json.new" {
			slog.Warn("storage: removing orphaned staging artefact", "path", p)
			return os.Remove(p)
		}
		return nil
	})
}

// ObjectRootPath implements Engine.
func (f *Filesystem) ObjectRootPath(objectID string) (string, error) {
	rel, err := f.layout.Map(objectID)
	if err != nil {
		return "", ocflerr.Wrap(ocflerr.OcflInput, "ObjectRootPath", objectID, err)
	}
	return filepath.Join(f.root, filepath.FromSlash(rel)), nil
}

// ContainsObject implements Engine.
func (f *Filesystem) ContainsObject(ctx context.Context, objectID string) (bool, error) {
	root, err := f.ObjectRootPath(objectID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(root, inventoryFileName))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, ocflerr.Wrap(ocflerr.OcflIO, "ContainsObject", objectID, err)
	}
	return true, nil
}

// LoadInventory implements Engine.
func (f *Filesystem) LoadInventory(ctx context.Context, objectID string) (*inventory.Inventory, error) {
	root, err := f.ObjectRootPath(objectID)
	if err != nil {
		return nil, err
	}

	if mutHead, err := f.tryLoadMutableHead(root, objectID); err != nil {
		return nil, err
	} else if mutHead != nil {
		return mutHead, nil
	}

	return f.loadAndVerifyInventory(root, objectID)
}

func (f *Filesystem) tryLoadMutableHead(objectRoot, objectID string) (*inventory.Inventory, error) {
	headDir := MutableHeadVersionPath(objectRoot)
	if _, err := os.Stat(InventoryPath(headDir)); os.IsNotExist(err) {
		return nil, nil
	}

	inv, err := f.loadAndVerifyInventory(headDir, objectID)
	if err != nil {
		return nil, err
	}

	if err := f.ensureRootObjectHasNotChanged(objectRoot, inv); err != nil {
		return nil, err
	}

	inv.SetObjectRootPath(objectRoot)
	return inv, nil
}

func (f *Filesystem) loadAndVerifyInventory(dir, objectID string) (*inventory.Inventory, error) {
	invPath := InventoryPath(dir)
	raw, err := os.ReadFile(invPath)
	if os.IsNotExist(err) {
		return nil, ocflerr.New(ocflerr.NotFound, "LoadInventory", objectID, "object does not exist")
	}
	if err != nil {
		return nil, ocflerr.Wrap(ocflerr.OcflIO, "LoadInventory", objectID, err)
	}

	inv, err := inventory.Unmarshal(raw, dir)
	if err != nil {
		return nil, ocflerr.Wrap(ocflerr.CorruptObject, "LoadInventory", objectID, err)
	}

	if err := f.verifySidecar(dir, raw, inv.DigestAlgorithm); err != nil {
		return nil, ocflerr.Wrap(ocflerr.CorruptObject, "LoadInventory", objectID, err)
	}
	if err := inventory.Validate(inv); err != nil {
		return nil, ocflerr.Wrap(ocflerr.CorruptObject, "LoadInventory", objectID, err)
	}

	return inv, nil
}

func (f *Filesystem) verifySidecar(dir string, invRaw []byte, algorithm digest.Algorithm) error {
	sidecarPath := InventorySidecarPath(dir, algorithm)
	sidecar, err := os.ReadFile(sidecarPath)
	if err != nil {
		return fmt.Errorf("missing inventory sidecar %s: %w", sidecarPath, err)
	}
	expected, err := inventory.ParseSidecar(sidecar)
	if err != nil {
		return err
	}
	actual, err := digest.Sum(algorithm, strings.NewReader(string(invRaw)))
	if err != nil {
		return err
	}
	if !digest.Equal(expected, actual) {
		return fmt.Errorf("inventory digest mismatch: sidecar says %s, computed %s", expected, actual)
	}
	return nil
}

func (f *Filesystem) ensureRootObjectHasNotChanged(objectRoot string, mutHead *inventory.Inventory) error {
	backup := filepath.Join(MutableHeadRoot(objectRoot), RootSidecarBackupName(mutHead.DigestAlgorithm))
	savedRaw, err := os.ReadFile(backup)
	if err != nil {
		return ocflerr.Wrap(ocflerr.CorruptObject, "LoadInventory", mutHead.ID, fmt.Errorf("missing root sidecar backup: %w", err))
	}
	saved, err := inventory.ParseSidecar(savedRaw)
	if err != nil {
		return ocflerr.Wrap(ocflerr.CorruptObject, "LoadInventory", mutHead.ID, err)
	}

	rootSidecarRaw, err := os.ReadFile(InventorySidecarPath(objectRoot, mutHead.DigestAlgorithm))
	if err != nil {
		return ocflerr.Wrap(ocflerr.CorruptObject, "LoadInventory", mutHead.ID, fmt.Errorf("missing root sidecar: %w", err))
	}
	current, err := inventory.ParseSidecar(rootSidecarRaw)
	if err != nil {
		return ocflerr.Wrap(ocflerr.CorruptObject, "LoadInventory", mutHead.ID, err)
	}

	if !digest.Equal(saved, current) {
		return ocflerr.New(ocflerr.ObjectOutOfSync, "LoadInventory", mutHead.ID, "mutable head is out of sync with the root object state")
	}
	return nil
}

// LoadInventoryVersion implements Engine.
func (f *Filesystem) LoadInventoryVersion(ctx context.Context, objectID string, v inventory.VersionNum) (*inventory.Inventory, error) {
	root, err := f.ObjectRootPath(objectID)
	if err != nil {
		return nil, err
	}
	return f.loadAndVerifyInventory(VersionPath(root, v), objectID)
}

// StoreNewVersion implements Engine's immutable-version commit: the
// caller has already acquired the lock and staged content under
// req.StagingDir.
func (f *Filesystem) StoreNewVersion(ctx context.Context, req NewVersionRequest) error {
	inv := req.Inventory
	root, err := f.ObjectRootPath(inv.ID)
	if err != nil {
		return err
	}

	versionPath := VersionPath(root, inv.Head)
	if _, err := os.Stat(versionPath); err == nil {
		return ocflerr.New(ocflerr.ObjectOutOfSync, "StoreNewVersion", inv.ID, fmt.Sprintf("version directory %s already exists", versionPath))
	}

	firstVersion := inv.Head.Num == 1
	var namasteWritten string

	if firstVersion {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return ocflerr.Wrap(ocflerr.OcflIO, "StoreNewVersion", inv.ID, err)
		}
		namasteWritten = filepath.Join(root, ObjectNamasteName())
		if err := os.WriteFile(namasteWritten, []byte(ObjectNamasteContent+"\n"), 0o644); err != nil {
			return ocflerr.Wrap(ocflerr.OcflIO, "StoreNewVersion", inv.ID, err)
		}
	}

	stagedVersionDir := filepath.Join(req.StagingDir, inv.Head.String())
	if err := os.Rename(stagedVersionDir, versionPath); err != nil {
		if firstVersion {
			os.Remove(namasteWritten)
		}
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreNewVersion", inv.ID, fmt.Errorf("promoting staged version directory: %w", err))
	}

	if err := f.publishRootInventory(root, inv.ID, versionPath, inv.DigestAlgorithm); err != nil {
		os.RemoveAll(versionPath)
		if firstVersion {
			os.Remove(namasteWritten)
		}
		return err
	}

	return nil
}

// publishRootInventory copies the version's already-published inventory
// and sidecar over the object root's inventory.json / sidecar, the
// single atomic publish point.
func (f *Filesystem) publishRootInventory(objectRoot, objectID, versionPath string, algorithm digest.Algorithm) error {
	invBytes, err := os.ReadFile(InventoryPath(versionPath))
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreNewVersion", objectID, err)
	}
	sidecarBytes, err := os.ReadFile(InventorySidecarPath(versionPath, algorithm))
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreNewVersion", objectID, err)
	}

	if err := atomic.WriteFile(InventoryPath(objectRoot), strings.NewReader(string(invBytes))); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreNewVersion", objectID, fmt.Errorf("publishing root inventory: %w", err))
	}
	if err := atomic.WriteFile(InventorySidecarPath(objectRoot, algorithm), strings.NewReader(string(sidecarBytes))); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreNewVersion", objectID, fmt.Errorf("publishing root sidecar: %w", err))
	}
	return nil
}

// LatestMutableHeadRevision implements Engine.
func (f *Filesystem) LatestMutableHeadRevision(ctx context.Context, objectID string) (int, bool, error) {
	root, err := f.ObjectRootPath(objectID)
	if err != nil {
		return 0, false, err
	}
	return f.latestMutableHeadRevision(root)
}

// StoreMutableHead implements Engine.
func (f *Filesystem) StoreMutableHead(ctx context.Context, req NewVersionRequest, revision int) error {
	inv := req.Inventory
	root, err := f.ObjectRootPath(inv.ID)
	if err != nil {
		return err
	}

	if latest, ok, err := f.latestMutableHeadRevision(root); err != nil {
		return err
	} else if ok && latest >= revision {
		return ocflerr.New(ocflerr.ObjectOutOfSync, "StoreMutableHead", inv.ID, "mutable head changes are out of sync with the current object state")
	}

	headDir := MutableHeadVersionPath(root)
	cleanupBackup := ""

	if _, err := os.Stat(headDir); os.IsNotExist(err) {
		backupPath := filepath.Join(MutableHeadRoot(root), RootSidecarBackupName(inv.DigestAlgorithm))
		rootSidecar, err := os.ReadFile(InventorySidecarPath(root, inv.DigestAlgorithm))
		if err != nil {
			return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
		}
		if err := os.MkdirAll(filepath.Dir(backupPath), 0o755); err != nil {
			return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
		}
		if err := os.WriteFile(backupPath, rootSidecar, 0o644); err != nil {
			return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
		}
		cleanupBackup = backupPath
	} else {
		if err := f.ensureRootObjectHasNotChanged(root, inv); err != nil {
			return err
		}
	}

	marker := MutableHeadRevisionMarker(root, revision)
	if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		f.cleanupMutableHeadFailure(cleanupBackup)
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	}
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		f.cleanupMutableHeadFailure(cleanupBackup)
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	}

	stagedVersionDir := filepath.Join(req.StagingDir, inv.Head.String())

	if err := os.RemoveAll(headDir); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	}
	if err := os.MkdirAll(filepath.Dir(headDir), 0o755); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	}
	if err := os.Rename(stagedVersionDir, headDir); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	}

	return nil
}

func (f *Filesystem) cleanupMutableHeadFailure(backupPath string) {
	if backupPath != "" {
		os.Remove(backupPath)
	}
}

func (f *Filesystem) latestMutableHeadRevision(objectRoot string) (int, bool, error) {
	dir := MutableHeadRevisionsPath(objectRoot)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, ocflerr.Wrap(ocflerr.OcflIO, "latestMutableHeadRevision", objectRoot, err)
	}

	best := 0
	found := false
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e.Name(), "r%d", &n); err != nil {
			continue
		}
		if !found || n > best {
			best = n
			found = true
		}
	}
	return best, found, nil
}

// CommitMutableHead implements Engine: promotes the accumulated
// mutable-head revisions to a real vN+1 by moving blobs (filesystem)
// and writing a proper version inventory.
func (f *Filesystem) CommitMutableHead(ctx context.Context, oldInventory, newInventory *inventory.Inventory, stagingDir string) error {
	root, err := f.ObjectRootPath(newInventory.ID)
	if err != nil {
		return err
	}

	if err := f.ensureRootObjectHasNotChanged(root, newInventory); err != nil {
		return err
	}

	headDir := MutableHeadVersionPath(root)
	if _, err := os.Stat(headDir); os.IsNotExist(err) {
		return ocflerr.New(ocflerr.ObjectOutOfSync, "CommitMutableHead", newInventory.ID, "cannot commit mutable head because it does not exist")
	}

	versionPath := VersionPath(root, newInventory.Head)
	if _, err := os.Stat(versionPath); err == nil {
		return ocflerr.New(ocflerr.ObjectOutOfSync, "CommitMutableHead", newInventory.ID, fmt.Sprintf("version directory %s already exists", versionPath))
	}

	// headDir already physically holds the promoted content (it was
	// populated by StoreMutableHead's revisions); only its inventory
	// and sidecar are replaced, with the freshly built ones staged at
	// stagingDir/<head>/ by the caller.
	stagedVersionDir := filepath.Join(stagingDir, newInventory.Head.String())
	invBytes, err := os.ReadFile(filepath.Join(stagedVersionDir, "inventory.json"))
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "CommitMutableHead", newInventory.ID, err)
	}
	sidecarBytes, err := os.ReadFile(filepath.Join(stagedVersionDir, inventory.SidecarName(newInventory.DigestAlgorithm)))
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "CommitMutableHead", newInventory.ID, err)
	}
	if err := os.WriteFile(filepath.Join(headDir, "inventory.json"), invBytes, 0o644); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "CommitMutableHead", newInventory.ID, err)
	}
	if err := os.WriteFile(filepath.Join(headDir, inventory.SidecarName(newInventory.DigestAlgorithm)), sidecarBytes, 0o644); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "CommitMutableHead", newInventory.ID, err)
	}

	if err := os.Rename(headDir, versionPath); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "CommitMutableHead", newInventory.ID, err)
	}

	if err := f.publishRootInventory(root, newInventory.ID, versionPath, newInventory.DigestAlgorithm); err != nil {
		os.RemoveAll(versionPath)
		return err
	}

	if err := os.RemoveAll(MutableHeadRoot(root)); err != nil {
		slog.Error("storage: failed to clean up mutable head after commit, must be removed manually", "object", newInventory.ID, "err", err)
	}

	return nil
}

// PurgeMutableHead implements Engine.
func (f *Filesystem) PurgeMutableHead(ctx context.Context, objectID string) error {
	root, err := f.ObjectRootPath(objectID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(MutableHeadRoot(root)); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "PurgeMutableHead", objectID, err)
	}
	return nil
}

// GetObjectStreams implements Engine.
func (f *Filesystem) GetObjectStreams(ctx context.Context, inv *inventory.Inventory, v inventory.VersionNum) (map[string]io.ReadCloser, error) {
	ver, ok := inv.Version(v)
	if !ok {
		return nil, ocflerr.New(ocflerr.NotFound, "GetObjectStreams", inv.ID, fmt.Sprintf("version %s not found", v))
	}

	streams := make(map[string]io.ReadCloser, len(ver.State))
	for dig, logicalPaths := range ver.State {
		contentPath, err := inv.ResolveContentPath(dig)
		if err != nil {
			return nil, ocflerr.Wrap(ocflerr.CorruptObject, "GetObjectStreams", inv.ID, err)
		}
		full := ContentPath(inv.ObjectRootPath(), contentPath)

		for _, logicalPath := range logicalPaths {
			file, err := os.Open(full)
			if err != nil {
				return nil, ocflerr.Wrap(ocflerr.OcflIO, "GetObjectStreams", inv.ID, err)
			}
			checked, err := digest.NewFixityCheckingReader(file, inv.DigestAlgorithm, dig)
			if err != nil {
				file.Close()
				return nil, err
			}
			streams[logicalPath] = checked
		}
	}
	return streams, nil
}

// ReconstructObjectVersion implements Engine.
func (f *Filesystem) ReconstructObjectVersion(ctx context.Context, inv *inventory.Inventory, v inventory.VersionNum, sink FileSink) error {
	streams, err := f.GetObjectStreams(ctx, inv, v)
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(streams))
	for p := range streams {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, logicalPath := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := streams[logicalPath]
		dst, err := sink(logicalPath)
		if err != nil {
			src.Close()
			return ocflerr.Wrap(ocflerr.OcflIO, "ReconstructObjectVersion", inv.ID, err)
		}
		_, copyErr := io.Copy(dst, src)
		closeErr := dst.Close()
		src.Close()

		if copyErr != nil {
			var fixityErr *digest.FixityError
			if errors.As(copyErr, &fixityErr) {
				return ocflerr.Wrap(ocflerr.FixityCheck, "ReconstructObjectVersion", inv.ID, fmt.Errorf("%s: %w", logicalPath, copyErr))
			}
			return ocflerr.Wrap(ocflerr.OcflIO, "ReconstructObjectVersion", inv.ID, fmt.Errorf("%s: %w", logicalPath, copyErr))
		}
		if closeErr != nil {
			return ocflerr.Wrap(ocflerr.OcflIO, "ReconstructObjectVersion", inv.ID, closeErr)
		}
	}
	return nil
}

// RollbackToVersion implements Engine.
func (f *Filesystem) RollbackToVersion(ctx context.Context, objectID string, v inventory.VersionNum) error {
	root, err := f.ObjectRootPath(objectID)
	if err != nil {
		return err
	}

	target := VersionPath(root, v)
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return ocflerr.New(ocflerr.NotFound, "RollbackToVersion", objectID, fmt.Sprintf("version %s not found", v))
	}

	targetInv, err := f.loadAndVerifyInventory(target, objectID)
	if err != nil {
		return err
	}

	if err := f.publishRootInventory(root, objectID, target, targetInv.DigestAlgorithm); err != nil {
		return err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "RollbackToVersion", objectID, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		num, err := inventory.ParseVersionNum(e.Name())
		if err != nil {
			continue
		}
		if num.Num > v.Num {
			if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
				return ocflerr.Wrap(ocflerr.OcflIO, "RollbackToVersion", objectID, err)
			}
		}
	}

	return os.RemoveAll(MutableHeadRoot(root))
}

// PurgeObject implements Engine.
func (f *Filesystem) PurgeObject(ctx context.Context, objectID string) error {
	root, err := f.ObjectRootPath(objectID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(root); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "PurgeObject", objectID, err)
	}
	return nil
}

// ExportObject implements Engine.
func (f *Filesystem) ExportObject(ctx context.Context, objectID string, destDir string) error {
	root, err := f.ObjectRootPath(objectID)
	if err != nil {
		return err
	}
	return copyTree(root, destDir)
}

// ExportVersion implements Engine.
func (f *Filesystem) ExportVersion(ctx context.Context, objectID string, v inventory.VersionNum, destDir string) error {
	root, err := f.ObjectRootPath(objectID)
	if err != nil {
		return err
	}
	return copyTree(VersionPath(root, v), destDir)
}

// ImportObject implements Engine.
func (f *Filesystem) ImportObject(ctx context.Context, objectID string, srcDir string) error {
	root, err := f.ObjectRootPath(objectID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(root); err == nil {
		return ocflerr.New(ocflerr.AlreadyExists, "ImportObject", objectID, "object already exists")
	}

	inv, err := f.loadAndVerifyInventory(srcDir, objectID)
	if err != nil {
		return err
	}
	if err := inventory.Validate(inv); err != nil {
		return ocflerr.Wrap(ocflerr.OcflState, "ImportObject", objectID, err)
	}

	if err := os.MkdirAll(filepath.Dir(root), 0o755); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "ImportObject", objectID, err)
	}
	return copyTree(srcDir, root)
}

// ListObjectIds implements Engine by walking the storage root for
// object NAMASTE files.
func (f *Filesystem) ListObjectIds(ctx context.Context) (Iterator, error) {
	var ids []string
	err := filepath.Walk(f.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || info.Name() != ObjectNamasteName() {
			return nil
		}
		objectRoot := filepath.Dir(p)
		raw, err := os.ReadFile(InventoryPath(objectRoot))
		if err != nil {
			return nil
		}
		var doc struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &doc); err == nil && doc.ID != "" {
			ids = append(ids, doc.ID)
		}
		return nil
	})
	if err != nil {
		return nil, ocflerr.Wrap(ocflerr.OcflIO, "ListObjectIds", "", err)
	}
	sort.Strings(ids)
	return &sliceIterator{ids: ids}, nil
}

// Close implements Engine. The filesystem backend holds no resources.
func (f *Filesystem) Close() error { return nil }

type sliceIterator struct {
	ids []string
	pos int
}

func (s *sliceIterator) Next() (string, bool, error) {
	if s.pos >= len(s.ids) {
		return "", false, nil
	}
	id := s.ids[s.pos]
	s.pos++
	return id, true, nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
