package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"golang.org/x/sync/errgroup"

	"ocfl/internal/digest"
	"ocfl/internal/inventory"
	"ocfl/internal/layout"
	"ocfl/internal/ocflerr"
)

const (
	minPartSize            = 10 * humanize.MiByte
	maxPartSize            = 100 * humanize.MiByte
	multipartThreshold     = 100 * humanize.MiByte
	initialMaxParts        = 10000
	cloudMaxConcurrency    = 8
	cloudUploadContentType = "application/octet-stream"
	cloudMarkerContentType = "text/plain; charset=UTF-8"
)

// Cloud is the Engine implementation backed by an S3-compatible object
// store, grounded operation-for-operation on CloudOcflStorage's
// write-then-swap-root pattern: content and version inventories are
// uploaded under the new version's key before the object root's
// inventory.json is swapped, so a crash mid-commit never corrupts an
// already-published version.
type Cloud struct {
	client *minio.Client
	core   *minio.Core
	bucket string
	prefix string
	layout layout.Layout
}

// NewCloud constructs a Cloud engine. core is used only for multipart
// uploads of large content files; client handles everything else.
func NewCloud(client *minio.Client, core *minio.Core, bucket, prefix string, l layout.Layout) *Cloud {
	return &Cloud{client: client, core: core, bucket: bucket, prefix: strings.Trim(prefix, "/"), layout: l}
}

func (c *Cloud) key(parts ...string) string {
	all := append([]string{c.prefix}, parts...)
	return path.Join(all...)
}

// ObjectRootPath implements Engine.
func (c *Cloud) ObjectRootPath(objectID string) (string, error) {
	rel, err := c.layout.Map(objectID)
	if err != nil {
		return "", ocflerr.Wrap(ocflerr.OcflInput, "ObjectRootPath", objectID, err)
	}
	return c.key(rel), nil
}

func (c *Cloud) hasAnyObjectUnder(ctx context.Context, prefix string) (bool, error) {
	opts := minio.ListObjectsOptions{Prefix: prefix + "/", Recursive: true, MaxKeys: 1}
	for obj := range c.client.ListObjects(ctx, c.bucket, opts) {
		if obj.Err != nil {
			return false, obj.Err
		}
		return true, nil
	}
	return false, nil
}

// ContainsObject implements Engine.
func (c *Cloud) ContainsObject(ctx context.Context, objectID string) (bool, error) {
	root, err := c.ObjectRootPath(objectID)
	if err != nil {
		return false, err
	}
	ok, err := c.hasAnyObjectUnder(ctx, root)
	if err != nil {
		return false, ocflerr.Wrap(ocflerr.OcflIO, "ContainsObject", objectID, err)
	}
	return ok, nil
}

func (c *Cloud) downloadBytes(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	return data, nil
}

func (c *Cloud) uploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (c *Cloud) copyObject(ctx context.Context, srcKey, dstKey string) error {
	src := minio.CopySrcOptions{Bucket: c.bucket, Object: srcKey}
	dst := minio.CopyDestOptions{Bucket: c.bucket, Object: dstKey}
	_, err := c.client.CopyObject(ctx, dst, src)
	return err
}

func (c *Cloud) deleteObjects(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := c.client.RemoveObject(ctx, c.bucket, k, minio.RemoveObjectOptions{}); err != nil {
			slog.Warn("storage: failed to roll back cloud object, may be left orphaned", "key", k, "err", err)
		}
	}
}

func (c *Cloud) removePrefix(ctx context.Context, prefix string) error {
	objectsCh := c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix + "/", Recursive: true})
	keysCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(keysCh)
		for obj := range objectsCh {
			if obj.Err == nil {
				keysCh <- obj
			}
		}
	}()
	for result := range c.client.RemoveObjects(ctx, c.bucket, keysCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return result.Err
		}
	}
	return nil
}

func (c *Cloud) getDigestFromSidecar(ctx context.Context, sidecarKey string) (string, error) {
	raw, err := c.downloadBytes(ctx, sidecarKey)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("missing inventory sidecar %s: %w", sidecarKey, err)
		}
		return "", err
	}
	return inventory.ParseSidecar(raw)
}

// LoadInventory implements Engine.
func (c *Cloud) LoadInventory(ctx context.Context, objectID string) (*inventory.Inventory, error) {
	root, err := c.ObjectRootPath(objectID)
	if err != nil {
		return nil, err
	}

	mutHeadDir := MutableHeadVersionPath(root)
	raw, err := c.downloadBytes(ctx, InventoryPath(mutHeadDir))
	if err == nil {
		inv, err := c.parseAndVerifyInventory(ctx, mutHeadDir, raw, objectID)
		if err != nil {
			return nil, err
		}
		if err := c.ensureRootObjectHasNotChanged(ctx, root, inv); err != nil {
			return nil, err
		}
		inv.SetObjectRootPath(root)
		return inv, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, ocflerr.Wrap(ocflerr.OcflIO, "LoadInventory", objectID, err)
	}

	rootRaw, err := c.downloadBytes(ctx, InventoryPath(root))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ocflerr.New(ocflerr.NotFound, "LoadInventory", objectID, "object does not exist")
	}
	if err != nil {
		return nil, ocflerr.Wrap(ocflerr.OcflIO, "LoadInventory", objectID, err)
	}
	return c.parseAndVerifyInventory(ctx, root, rootRaw, objectID)
}

func (c *Cloud) parseAndVerifyInventory(ctx context.Context, dir string, raw []byte, objectID string) (*inventory.Inventory, error) {
	inv, err := inventory.Unmarshal(raw, dir)
	if err != nil {
		return nil, ocflerr.Wrap(ocflerr.CorruptObject, "LoadInventory", objectID, err)
	}

	expected, err := c.getDigestFromSidecar(ctx, InventorySidecarPath(dir, inv.DigestAlgorithm))
	if err != nil {
		return nil, ocflerr.Wrap(ocflerr.CorruptObject, "LoadInventory", objectID, err)
	}
	actual, err := digest.Sum(inv.DigestAlgorithm, bytes.NewReader(raw))
	if err != nil {
		return nil, ocflerr.Wrap(ocflerr.OcflIO, "LoadInventory", objectID, err)
	}
	if !digest.Equal(expected, actual) {
		return nil, ocflerr.New(ocflerr.CorruptObject, "LoadInventory", objectID, "inventory digest mismatch")
	}
	if err := inventory.Validate(inv); err != nil {
		return nil, ocflerr.Wrap(ocflerr.CorruptObject, "LoadInventory", objectID, err)
	}
	return inv, nil
}

func (c *Cloud) ensureRootObjectHasNotChanged(ctx context.Context, objectRoot string, mutHead *inventory.Inventory) error {
	backupKey := path.Join(MutableHeadRoot(objectRoot), RootSidecarBackupName(mutHead.DigestAlgorithm))
	saved, err := c.getDigestFromSidecar(ctx, backupKey)
	if err != nil {
		return ocflerr.Wrap(ocflerr.CorruptObject, "LoadInventory", mutHead.ID, err)
	}
	current, err := c.getDigestFromSidecar(ctx, InventorySidecarPath(objectRoot, mutHead.DigestAlgorithm))
	if err != nil {
		return ocflerr.Wrap(ocflerr.CorruptObject, "LoadInventory", mutHead.ID, err)
	}
	if !digest.Equal(saved, current) {
		return ocflerr.New(ocflerr.ObjectOutOfSync, "LoadInventory", mutHead.ID, "mutable head is out of sync with the root object state")
	}
	return nil
}

// LoadInventoryVersion implements Engine.
func (c *Cloud) LoadInventoryVersion(ctx context.Context, objectID string, v inventory.VersionNum) (*inventory.Inventory, error) {
	root, err := c.ObjectRootPath(objectID)
	if err != nil {
		return nil, err
	}
	versionPath := VersionPath(root, v)
	raw, err := c.downloadBytes(ctx, InventoryPath(versionPath))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ocflerr.New(ocflerr.NotFound, "LoadInventoryVersion", objectID, fmt.Sprintf("version %s not found", v))
	}
	if err != nil {
		return nil, ocflerr.Wrap(ocflerr.OcflIO, "LoadInventoryVersion", objectID, err)
	}
	return c.parseAndVerifyInventory(ctx, versionPath, raw, objectID)
}

// StoreNewVersion implements Engine.
func (c *Cloud) StoreNewVersion(ctx context.Context, req NewVersionRequest) error {
	inv := req.Inventory
	root, err := c.ObjectRootPath(inv.ID)
	if err != nil {
		return err
	}

	if ok, err := c.hasAnyObjectUnder(ctx, MutableHeadVersionPath(root)); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreNewVersion", inv.ID, err)
	} else if ok {
		return ocflerr.New(ocflerr.OcflState, "StoreNewVersion", inv.ID, "cannot create a new version because a mutable head is active")
	}

	versionPath := VersionPath(root, inv.Head)
	if ok, err := c.hasAnyObjectUnder(ctx, versionPath); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreNewVersion", inv.ID, err)
	} else if ok {
		return ocflerr.New(ocflerr.ObjectOutOfSync, "StoreNewVersion", inv.ID, "changes are out of sync with the current object state")
	}

	firstVersion := inv.Head.Num == 1
	namasteKey := ""
	if firstVersion {
		namasteKey = path.Join(root, ObjectNamasteName())
		if err := c.uploadBytes(ctx, namasteKey, []byte(ObjectNamasteContent+"\n"), cloudMarkerContentType); err != nil {
			return ocflerr.Wrap(ocflerr.OcflIO, "StoreNewVersion", inv.ID, err)
		}
	}

	uploaded, err := c.uploadContent(ctx, req.StagingDir, inv.Head.String(), req.NewContentPaths, versionPath)
	if err != nil {
		if namasteKey != "" {
			c.deleteObjects(ctx, []string{namasteKey})
		}
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreNewVersion", inv.ID, err)
	}

	stagedVersionDir := filepath.Join(req.StagingDir, inv.Head.String())
	if err := c.storeInventoryWithRollback(ctx, inv, root, stagedVersionDir, versionPath); err != nil {
		c.deleteObjects(ctx, uploaded)
		if namasteKey != "" {
			c.deleteObjects(ctx, []string{namasteKey})
		}
		return err
	}

	return nil
}

// uploadContent uploads every new content path listed in
// contentPaths, reading each from stagingDir/versionSegment/... and
// writing it to versionPath/... under the same path below the version
// segment, in parallel bounded by cloudMaxConcurrency. It returns the set
// of keys it wrote, for rollback on a later failure.
func (c *Cloud) uploadContent(ctx context.Context, stagingDir, versionSegment string, contentPaths []string, versionPath string) ([]string, error) {
	if len(contentPaths) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cloudMaxConcurrency)

	uploaded := make([]string, len(contentPaths))
	for i, contentPath := range contentPaths {
		i, contentPath := i, contentPath
		g.Go(func() error {
			relToVersion := strings.TrimPrefix(contentPath, versionSegment+"/")
			localPath := filepath.Join(stagingDir, versionSegment, filepath.FromSlash(relToVersion))
			key := path.Join(versionPath, relToVersion)

			f, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("staged file %s does not exist: %w", localPath, err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return err
			}

			if info.Size() > multipartThreshold {
				if err := c.multipartUpload(gctx, f, info.Size(), key); err != nil {
					return err
				}
			} else {
				if _, err := c.client.PutObject(gctx, c.bucket, key, f, info.Size(), minio.PutObjectOptions{ContentType: cloudUploadContentType}); err != nil {
					return err
				}
			}
			uploaded[i] = key
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var partial []string
		for _, k := range uploaded {
			if k != "" {
				partial = append(partial, k)
			}
		}
		c.deleteObjects(ctx, partial)
		return nil, err
	}

	return uploaded, nil
}

// calculatePartSize implements the growth algorithm: part size starts
// at 10 MiB and doubles up to a 100 MiB ceiling; once that ceiling is
// hit without fitting under maxParts, the parts cap itself doubles
// instead, so any size up to 5 TiB eventually fits.
func calculatePartSize(totalSize int64) (partSize int64, numParts int) {
	partSize = minPartSize
	maxParts := int64(initialMaxParts)
	for {
		numParts = int(math.Ceil(float64(totalSize) / float64(partSize)))
		if int64(numParts) <= maxParts {
			return partSize, numParts
		}
		if partSize < maxPartSize {
			partSize *= 2
			if partSize > maxPartSize {
				partSize = maxPartSize
			}
			continue
		}
		maxParts *= 2
	}
}

func (c *Cloud) multipartUpload(ctx context.Context, r io.Reader, size int64, key string) error {
	partSize, _ := calculatePartSize(size)

	uploadID, err := c.core.NewMultipartUpload(ctx, c.bucket, key, minio.PutObjectOptions{ContentType: cloudUploadContentType})
	if err != nil {
		return err
	}

	var parts []minio.CompletePart
	buf := make([]byte, partSize)
	partNumber := 1

	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			part, err := c.core.PutObjectPart(ctx, c.bucket, key, uploadID, partNumber, bytes.NewReader(buf[:n]), int64(n), minio.PutObjectPartOptions{})
			if err != nil {
				_ = c.core.AbortMultipartUpload(ctx, c.bucket, key, uploadID)
				return err
			}
			parts = append(parts, minio.CompletePart{PartNumber: part.PartNumber, ETag: part.ETag})
			partNumber++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			_ = c.core.AbortMultipartUpload(ctx, c.bucket, key, uploadID)
			return readErr
		}
	}

	_, err = c.core.CompleteMultipartUpload(ctx, c.bucket, key, uploadID, parts, minio.PutObjectOptions{ContentType: cloudUploadContentType})
	if err != nil {
		_ = c.core.AbortMultipartUpload(ctx, c.bucket, key, uploadID)
		return err
	}
	return nil
}

func (c *Cloud) storeInventoryWithRollback(ctx context.Context, inv *inventory.Inventory, objectRoot, stagingDir, versionPath string) error {
	srcInv := filepath.Join(stagingDir, inventoryFileName)
	srcSidecar := filepath.Join(stagingDir, inventory.SidecarName(inv.DigestAlgorithm))

	invBytes, err := os.ReadFile(srcInv)
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "storeInventoryWithRollback", inv.ID, err)
	}
	sidecarBytes, err := os.ReadFile(srcSidecar)
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "storeInventoryWithRollback", inv.ID, err)
	}

	versionedInvKey := InventoryPath(versionPath)
	versionedSidecarKey := InventorySidecarPath(versionPath, inv.DigestAlgorithm)

	if err := c.uploadBytes(ctx, versionedInvKey, invBytes, cloudMarkerContentType); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "storeInventoryWithRollback", inv.ID, err)
	}
	if err := c.uploadBytes(ctx, versionedSidecarKey, sidecarBytes, cloudMarkerContentType); err != nil {
		c.deleteObjects(ctx, []string{versionedInvKey})
		return ocflerr.Wrap(ocflerr.OcflIO, "storeInventoryWithRollback", inv.ID, err)
	}

	if err := c.copyInventoryToRoot(ctx, versionPath, objectRoot, inv.DigestAlgorithm); err != nil {
		c.rollbackInventory(ctx, inv, objectRoot)
		c.deleteObjects(ctx, []string{versionedInvKey, versionedSidecarKey})
		return ocflerr.Wrap(ocflerr.OcflIO, "storeInventoryWithRollback", inv.ID, err)
	}

	return nil
}

func (c *Cloud) copyInventoryToRoot(ctx context.Context, versionPath, objectRoot string, algorithm digest.Algorithm) error {
	if err := c.copyObject(ctx, InventoryPath(versionPath), InventoryPath(objectRoot)); err != nil {
		return err
	}
	return c.copyObject(ctx, InventorySidecarPath(versionPath, algorithm), InventorySidecarPath(objectRoot, algorithm))
}

func (c *Cloud) rollbackInventory(ctx context.Context, inv *inventory.Inventory, objectRoot string) {
	if inv.Head.Num <= 1 {
		return
	}
	prevPath := VersionPath(objectRoot, inv.Head.Previous())
	if err := c.copyInventoryToRoot(ctx, prevPath, objectRoot, inv.DigestAlgorithm); err != nil {
		slog.Error("storage: failed to roll back root inventory, object must be fixed manually", "object", inv.ID, "err", err)
	}
}

// LatestMutableHeadRevision implements Engine.
func (c *Cloud) LatestMutableHeadRevision(ctx context.Context, objectID string) (int, bool, error) {
	root, err := c.ObjectRootPath(objectID)
	if err != nil {
		return 0, false, err
	}
	latest, ok, err := c.latestMutableHeadRevision(ctx, root)
	if err != nil {
		return 0, false, ocflerr.Wrap(ocflerr.OcflIO, "LatestMutableHeadRevision", objectID, err)
	}
	return latest, ok, nil
}

// StoreMutableHead implements Engine.
func (c *Cloud) StoreMutableHead(ctx context.Context, req NewVersionRequest, revision int) error {
	inv := req.Inventory
	root, err := c.ObjectRootPath(inv.ID)
	if err != nil {
		return err
	}

	if latest, ok, err := c.latestMutableHeadRevision(ctx, root); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	} else if ok && latest >= revision {
		return ocflerr.New(ocflerr.ObjectOutOfSync, "StoreMutableHead", inv.ID, "mutable head changes are out of sync with the current object state")
	}

	var cleanupKeys []string

	if ok, err := c.hasAnyObjectUnder(ctx, MutableHeadRoot(root)); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	} else if ok {
		if err := c.ensureRootObjectHasNotChanged(ctx, root, inv); err != nil {
			return err
		}
	} else {
		backupKey := path.Join(MutableHeadRoot(root), RootSidecarBackupName(inv.DigestAlgorithm))
		rootSidecar, err := c.downloadBytes(ctx, InventorySidecarPath(root, inv.DigestAlgorithm))
		if err != nil {
			return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
		}
		if err := c.uploadBytes(ctx, backupKey, rootSidecar, cloudMarkerContentType); err != nil {
			return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
		}
		cleanupKeys = append(cleanupKeys, backupKey)
	}

	markerKey := MutableHeadRevisionMarker(root, revision)
	if err := c.uploadBytes(ctx, markerKey, []byte{}, cloudMarkerContentType); err != nil {
		c.deleteObjects(ctx, cleanupKeys)
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	}
	cleanupKeys = append(cleanupKeys, markerKey)

	headDir := MutableHeadVersionPath(root)
	uploaded, err := c.uploadContent(ctx, req.StagingDir, inv.Head.String(), req.NewContentPaths, headDir)
	if err != nil {
		c.deleteObjects(ctx, cleanupKeys)
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	}

	stagedVersionDir := filepath.Join(req.StagingDir, inv.Head.String())
	srcInv := filepath.Join(stagedVersionDir, inventoryFileName)
	srcSidecar := filepath.Join(stagedVersionDir, inventory.SidecarName(inv.DigestAlgorithm))
	invBytes, err := os.ReadFile(srcInv)
	if err != nil {
		c.deleteObjects(ctx, append(cleanupKeys, uploaded...))
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	}
	sidecarBytes, err := os.ReadFile(srcSidecar)
	if err != nil {
		c.deleteObjects(ctx, append(cleanupKeys, uploaded...))
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	}

	if err := c.uploadBytes(ctx, InventoryPath(headDir), invBytes, cloudMarkerContentType); err != nil {
		c.deleteObjects(ctx, append(cleanupKeys, uploaded...))
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	}
	if err := c.uploadBytes(ctx, InventorySidecarPath(headDir, inv.DigestAlgorithm), sidecarBytes, cloudMarkerContentType); err != nil {
		c.deleteObjects(ctx, append(cleanupKeys, uploaded...))
		return ocflerr.Wrap(ocflerr.OcflIO, "StoreMutableHead", inv.ID, err)
	}

	return nil
}

func (c *Cloud) latestMutableHeadRevision(ctx context.Context, objectRoot string) (int, bool, error) {
	prefix := MutableHeadRevisionsPath(objectRoot)
	best, found := 0, false
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix + "/", Recursive: true}) {
		if obj.Err != nil {
			return 0, false, obj.Err
		}
		name := path.Base(obj.Key)
		var n int
		if _, err := fmt.Sscanf(name, "r%d", &n); err != nil {
			continue
		}
		if !found || n > best {
			best, found = n, true
		}
	}
	return best, found, nil
}

// CommitMutableHead implements Engine.
func (c *Cloud) CommitMutableHead(ctx context.Context, oldInventory, newInventory *inventory.Inventory, stagingDir string) error {
	root, err := c.ObjectRootPath(newInventory.ID)
	if err != nil {
		return err
	}

	if err := c.ensureRootObjectHasNotChanged(ctx, root, newInventory); err != nil {
		return err
	}

	if ok, err := c.hasAnyObjectUnder(ctx, MutableHeadVersionPath(root)); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "CommitMutableHead", newInventory.ID, err)
	} else if !ok {
		return ocflerr.New(ocflerr.ObjectOutOfSync, "CommitMutableHead", newInventory.ID, "cannot commit mutable head because it does not exist")
	}

	versionPath := VersionPath(root, newInventory.Head)
	if ok, err := c.hasAnyObjectUnder(ctx, versionPath); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "CommitMutableHead", newInventory.ID, err)
	} else if ok {
		return ocflerr.New(ocflerr.ObjectOutOfSync, "CommitMutableHead", newInventory.ID, "changes are out of sync with the current object state")
	}

	copied, err := c.copyMutableContentToVersion(ctx, root, newInventory, versionPath)
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "CommitMutableHead", newInventory.ID, err)
	}

	if err := c.storeInventoryWithRollback(ctx, newInventory, root, stagingDir, versionPath); err != nil {
		c.deleteObjects(ctx, copied)
		return err
	}

	if err := c.removePrefix(ctx, MutableHeadRoot(root)); err != nil {
		slog.Error("storage: failed to clean up mutable head after commit, must be removed manually", "object", newInventory.ID, "err", err)
	}

	return nil
}

func (c *Cloud) copyMutableContentToVersion(ctx context.Context, objectRoot string, inv *inventory.Inventory, versionPath string) ([]string, error) {
	headDir := MutableHeadVersionPath(objectRoot)
	contentDir := inv.ResolveContentDirectory()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cloudMaxConcurrency)

	seen := map[string]bool{}
	var relPaths []string
	for _, paths := range inv.Manifest {
		for _, p := range paths {
			if strings.HasPrefix(p, inv.Head.String()+"/"+contentDir+"/") && !seen[p] {
				seen[p] = true
				relPaths = append(relPaths, strings.TrimPrefix(p, inv.Head.String()+"/"))
			}
		}
	}
	sort.Strings(relPaths)

	copied := make([]string, len(relPaths))
	for i, rel := range relPaths {
		i, rel := i, rel
		g.Go(func() error {
			srcKey := path.Join(headDir, rel)
			dstKey := path.Join(versionPath, rel)
			if err := c.copyObject(gctx, srcKey, dstKey); err != nil {
				return err
			}
			copied[i] = dstKey
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var partial []string
		for _, k := range copied {
			if k != "" {
				partial = append(partial, k)
			}
		}
		c.deleteObjects(ctx, partial)
		return nil, err
	}

	return copied, nil
}

// PurgeMutableHead implements Engine.
func (c *Cloud) PurgeMutableHead(ctx context.Context, objectID string) error {
	root, err := c.ObjectRootPath(objectID)
	if err != nil {
		return err
	}
	if err := c.removePrefix(ctx, MutableHeadRoot(root)); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "PurgeMutableHead", objectID, err)
	}
	return nil
}

// GetObjectStreams implements Engine.
func (c *Cloud) GetObjectStreams(ctx context.Context, inv *inventory.Inventory, v inventory.VersionNum) (map[string]io.ReadCloser, error) {
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
		key := path.Join(inv.ObjectRootPath(), contentPath)

		for _, logicalPath := range logicalPaths {
			obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
			if err != nil {
				return nil, ocflerr.Wrap(ocflerr.OcflIO, "GetObjectStreams", inv.ID, err)
			}
			checked, err := digest.NewFixityCheckingReader(obj, inv.DigestAlgorithm, dig)
			if err != nil {
				obj.Close()
				return nil, err
			}
			streams[logicalPath] = checked
		}
	}
	return streams, nil
}

// ReconstructObjectVersion implements Engine, downloading files in
// parallel bounded by cloudMaxConcurrency.
func (c *Cloud) ReconstructObjectVersion(ctx context.Context, inv *inventory.Inventory, v inventory.VersionNum, sink FileSink) error {
	streams, err := c.GetObjectStreams(ctx, inv, v)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cloudMaxConcurrency)

	for logicalPath, src := range streams {
		logicalPath, src := logicalPath, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				src.Close()
				return err
			}
			dst, err := sink(logicalPath)
			if err != nil {
				src.Close()
				return err
			}
			_, copyErr := io.Copy(dst, src)
			closeErr := dst.Close()
			src.Close()
			if copyErr != nil {
				return fmt.Errorf("%s: %w", logicalPath, copyErr)
			}
			return closeErr
		})
	}

	if err := g.Wait(); err != nil {
		var fixityErr *digest.FixityError
		if errors.As(err, &fixityErr) {
			return ocflerr.Wrap(ocflerr.FixityCheck, "ReconstructObjectVersion", inv.ID, err)
		}
		return ocflerr.Wrap(ocflerr.OcflIO, "ReconstructObjectVersion", inv.ID, err)
	}
	return nil
}

// RollbackToVersion implements Engine.
func (c *Cloud) RollbackToVersion(ctx context.Context, objectID string, v inventory.VersionNum) error {
	root, err := c.ObjectRootPath(objectID)
	if err != nil {
		return err
	}

	target := VersionPath(root, v)
	if ok, err := c.hasAnyObjectUnder(ctx, target); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "RollbackToVersion", objectID, err)
	} else if !ok {
		return ocflerr.New(ocflerr.NotFound, "RollbackToVersion", objectID, fmt.Sprintf("version %s not found", v))
	}

	targetRaw, err := c.downloadBytes(ctx, InventoryPath(target))
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "RollbackToVersion", objectID, err)
	}
	targetInv, err := c.parseAndVerifyInventory(ctx, target, targetRaw, objectID)
	if err != nil {
		return err
	}

	if err := c.copyInventoryToRoot(ctx, target, root, targetInv.DigestAlgorithm); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "RollbackToVersion", objectID, err)
	}

	for n := v.Num + 1; ; n++ {
		candidate := path.Join(root, fmt.Sprintf("v%d", n))
		ok, err := c.hasAnyObjectUnder(ctx, candidate)
		if err != nil {
			return ocflerr.Wrap(ocflerr.OcflIO, "RollbackToVersion", objectID, err)
		}
		if !ok {
			break
		}
		if err := c.removePrefix(ctx, candidate); err != nil {
			return ocflerr.Wrap(ocflerr.OcflIO, "RollbackToVersion", objectID, err)
		}
	}

	return c.removePrefix(ctx, MutableHeadRoot(root))
}

// PurgeObject implements Engine.
func (c *Cloud) PurgeObject(ctx context.Context, objectID string) error {
	root, err := c.ObjectRootPath(objectID)
	if err != nil {
		return err
	}
	if err := c.removePrefix(ctx, root); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "PurgeObject", objectID, err)
	}
	return nil
}

// ExportObject implements Engine.
func (c *Cloud) ExportObject(ctx context.Context, objectID string, destDir string) error {
	root, err := c.ObjectRootPath(objectID)
	if err != nil {
		return err
	}
	return c.downloadTree(ctx, root, destDir)
}

// ExportVersion implements Engine.
func (c *Cloud) ExportVersion(ctx context.Context, objectID string, v inventory.VersionNum, destDir string) error {
	root, err := c.ObjectRootPath(objectID)
	if err != nil {
		return err
	}
	return c.downloadTree(ctx, VersionPath(root, v), destDir)
}

func (c *Cloud) downloadTree(ctx context.Context, prefix, destDir string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cloudMaxConcurrency)

	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix + "/", Recursive: true}) {
		if obj.Err != nil {
			return obj.Err
		}
		key := obj.Key
		g.Go(func() error {
			rel := strings.TrimPrefix(key, prefix+"/")
			dst := filepath.Join(destDir, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			return c.client.FGetObject(gctx, c.bucket, key, dst, minio.GetObjectOptions{})
		})
	}

	return g.Wait()
}

// ImportObject implements Engine.
func (c *Cloud) ImportObject(ctx context.Context, objectID string, srcDir string) error {
	root, err := c.ObjectRootPath(objectID)
	if err != nil {
		return err
	}
	if ok, err := c.hasAnyObjectUnder(ctx, root); err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "ImportObject", objectID, err)
	} else if ok {
		return ocflerr.New(ocflerr.AlreadyExists, "ImportObject", objectID, "object already exists")
	}

	raw, err := os.ReadFile(InventoryPath(srcDir))
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "ImportObject", objectID, err)
	}
	inv, err := inventory.Unmarshal(raw, srcDir)
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflState, "ImportObject", objectID, err)
	}
	if err := inventory.Validate(inv); err != nil {
		return ocflerr.Wrap(ocflerr.OcflState, "ImportObject", objectID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cloudMaxConcurrency)

	err = filepath.Walk(srcDir, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		key := path.Join(root, filepath.ToSlash(rel))
		g.Go(func() error {
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			_, err = c.client.PutObject(gctx, c.bucket, key, f, info.Size(), minio.PutObjectOptions{ContentType: cloudUploadContentType})
			return err
		})
		return nil
	})
	if err != nil {
		return ocflerr.Wrap(ocflerr.OcflIO, "ImportObject", objectID, err)
	}
	if err := g.Wait(); err != nil {
		c.removePrefix(ctx, root)
		return ocflerr.Wrap(ocflerr.OcflIO, "ImportObject", objectID, err)
	}
	return nil
}

// ListObjectIds implements Engine.
func (c *Cloud) ListObjectIds(ctx context.Context) (Iterator, error) {
	var ids []string
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: c.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, ocflerr.Wrap(ocflerr.OcflIO, "ListObjectIds", "", obj.Err)
		}
		if path.Base(obj.Key) != ObjectNamasteName() {
			continue
		}
		objectRoot := path.Dir(obj.Key)
		raw, err := c.downloadBytes(ctx, InventoryPath(objectRoot))
		if err != nil {
			continue
		}
		var doc struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &doc); err == nil && doc.ID != "" {
			ids = append(ids, doc.ID)
		}
	}
	sort.Strings(ids)
	return &sliceIterator{ids: ids}, nil
}

// Close implements Engine. minio.Client holds no resources that need
// an explicit shutdown.
func (c *Cloud) Close() error { return nil }
