package inventory

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"ocfl/internal/digest"
)

// VersionInfo carries the caller-supplied metadata for a commit.
type VersionInfo struct {
	Message string
	User    *User
}

// AddOptions configures a single AddFile/AddFilePath call.
type AddOptions struct {
	// FixityAlgorithms additionally digests the content under these
	// algorithms and records the results in the new inventory's fixity
	// block.
	FixityAlgorithms []digest.Algorithm
}

// AddResult reports what AddFile/AddFilePath did.
type AddResult struct {
	Digest      string
	ContentPath string
	IsNewBlob   bool
}

// Updater is a transactional builder: starting from a base inventory,
// it accumulates add/remove/rename/reinstate operations against a
// working version state and, on BuildNewInventory, produces a new,
// validated, immutable Inventory with Head advanced by one. The base
// inventory is never mutated.
type Updater struct {
	base             *Inventory
	algorithm        digest.Algorithm
	contentDirectory string
	mapper           ContentPathMapper
	scratchDir       string
	nextVersion      VersionNum

	manifest    DigestMap
	fixity      map[string]DigestMap
	state       DigestMap
	usedContent map[string]bool
}

// UpdaterOptions configures a new Updater. NewObjectID, Algorithm and
// ContentDirectory are only consulted when base is nil (a brand-new
// object); otherwise the base inventory's own settings carry forward
// unchanged, per invariant #5 (digestAlgorithm is fixed for the life
// of an object).
type UpdaterOptions struct {
	NewObjectID      string
	Algorithm        digest.Algorithm
	ContentDirectory string
	ScratchDir       string
	Mapper           ContentPathMapper
}

// NewUpdater starts a builder for the version following base's head.
// ScratchDir is where new content blobs are staged, under
// "<nextVersion>/<contentDirectory>/...". If base is nil, this starts
// a brand-new object at v1.
func NewUpdater(base *Inventory, opts UpdaterOptions) (*Updater, error) {
	mapper := opts.Mapper
	if mapper == nil {
		mapper = IdentityContentPathMapper
	}
	contentDirectory := opts.ContentDirectory
	if contentDirectory == "" {
		contentDirectory = DefaultContentDirectory
	}

	u := &Updater{
		algorithm:        opts.Algorithm,
		contentDirectory: contentDirectory,
		mapper:           mapper,
		scratchDir:       opts.ScratchDir,
		usedContent:      map[string]bool{},
	}

	if base == nil {
		if !opts.Algorithm.Valid() {
			return nil, fmt.Errorf("inventory: unsupported digestAlgorithm %q", opts.Algorithm)
		}
		u.base = &Inventory{
			ID:               opts.NewObjectID,
			Type:             OCFLVersion,
			DigestAlgorithm:  opts.Algorithm,
			ContentDirectory: contentDirectory,
			Manifest:         DigestMap{},
			Versions:         map[string]*Version{},
			Head:             VersionNum{Num: 0},
		}
		u.nextVersion = VersionNum{Num: 1, Padding: 0}
		u.manifest = DigestMap{}
		u.state = DigestMap{}
		return u, nil
	}

	u.base = base
	u.algorithm = base.DigestAlgorithm
	u.contentDirectory = base.ResolveContentDirectory()
	u.nextVersion = base.Head.Next()
	u.manifest = base.Manifest.Clone()

	if head, ok := base.HeadVersion(); ok {
		u.state = head.State.Clone()
	} else {
		u.state = DigestMap{}
	}

	if base.Fixity != nil {
		u.fixity = make(map[string]DigestMap, len(base.Fixity))
		for algo, m := range base.Fixity {
			u.fixity[algo] = m.Clone()
		}
	}

	for _, paths := range u.manifest {
		for _, p := range paths {
			u.usedContent[p] = true
		}
	}

	return u, nil
}

// AddFile digests src, stages it into the scratch directory if it is
// new content, and records logicalPath in the working state.
func (u *Updater) AddFile(src io.Reader, logicalPath string, opts AddOptions) (AddResult, error) {
	if err := digest.ValidateLogicalPath(logicalPath); err != nil {
		return AddResult{}, err
	}

	tmp, err := os.CreateTemp(u.scratchDir, "add-*")
	if err != nil {
		return AddResult{}, fmt.Errorf("inventory: create staging temp file: %w", err)
	}
	tmpPath := tmp.Name()
	removeTemp := true
	defer func() {
		if removeTemp {
			_ = os.Remove(tmpPath)
		}
	}()

	h, err := digest.New(u.algorithm)
	if err != nil {
		tmp.Close()
		return AddResult{}, err
	}
	if _, err := io.Copy(io.MultiWriter(tmp, h), src); err != nil {
		tmp.Close()
		return AddResult{}, fmt.Errorf("inventory: staging copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return AddResult{}, fmt.Errorf("inventory: closing staging temp file: %w", err)
	}

	dig := fmt.Sprintf("%x", h.Sum(nil))

	result, err := u.commitStagedContent(dig, logicalPath, tmpPath, &removeTemp)
	if err != nil {
		return AddResult{}, err
	}

	// A new blob has been moved out of tmpPath into its content path.
	fixitySource := tmpPath
	if result.IsNewBlob {
		fixitySource = filepath.Join(u.scratchDir, result.ContentPath)
	}
	if err := u.addFixity(opts, dig, fixitySource, result.IsNewBlob); err != nil {
		return AddResult{}, err
	}

	return result, nil
}

// AddFilePath is like AddFile but for content that already lives at
// srcPath on the local filesystem, avoiding a redundant read when the
// digest can be computed directly from the source.
func (u *Updater) AddFilePath(srcPath, logicalPath string, opts AddOptions) (AddResult, error) {
	if err := digest.ValidateLogicalPath(logicalPath); err != nil {
		return AddResult{}, err
	}

	dig, err := digest.SumFile(u.algorithm, srcPath)
	if err != nil {
		return AddResult{}, err
	}

	if existing, ok := u.existingManifestPath(dig); ok {
		u.addToState(dig, logicalPath)
		return AddResult{Digest: dig, ContentPath: existing, IsNewBlob: false}, nil
	}

	contentPath := u.allocateContentPath(dig, logicalPath)
	fullPath := filepath.Join(u.scratchDir, contentPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return AddResult{}, fmt.Errorf("inventory: staging mkdir: %w", err)
	}
	if err := copyOrLink(srcPath, fullPath); err != nil {
		return AddResult{}, fmt.Errorf("inventory: staging file: %w", err)
	}

	u.manifest[dig] = append(u.manifest[dig], contentPath)
	u.usedContent[contentPath] = true
	u.addToState(dig, logicalPath)

	if err := u.addFixity(opts, dig, srcPath, true); err != nil {
		return AddResult{}, err
	}

	return AddResult{Digest: dig, ContentPath: contentPath, IsNewBlob: true}, nil
}

func (u *Updater) commitStagedContent(dig, logicalPath, tmpPath string, removeTemp *bool) (AddResult, error) {
	if existing, ok := u.existingManifestPath(dig); ok {
		u.addToState(dig, logicalPath)
		return AddResult{Digest: dig, ContentPath: existing, IsNewBlob: false}, nil
	}

	contentPath := u.allocateContentPath(dig, logicalPath)
	fullPath := filepath.Join(u.scratchDir, contentPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return AddResult{}, fmt.Errorf("inventory: staging mkdir: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		return AddResult{}, fmt.Errorf("inventory: moving staged content into place: %w", err)
	}
	*removeTemp = false

	u.manifest[dig] = append(u.manifest[dig], contentPath)
	u.usedContent[contentPath] = true
	u.addToState(dig, logicalPath)

	return AddResult{Digest: dig, ContentPath: contentPath, IsNewBlob: true}, nil
}

func (u *Updater) existingManifestPath(dig string) (string, bool) {
	paths, ok := u.manifest[dig]
	if !ok || len(paths) == 0 {
		return "", false
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	return sorted[0], true
}

func (u *Updater) allocateContentPath(dig, logicalPath string) string {
	mapped := u.mapper(dig, logicalPath)
	candidate := fmt.Sprintf("%s/%s/%s", u.nextVersion, u.contentDirectory, mapped)
	return uniqueContentPath(candidate, u.usedContent)
}

func (u *Updater) addToState(dig, logicalPath string) {
	// Remove logicalPath from whatever digest currently owns it (a
	// re-add of the same logical path with new content replaces it).
	for d, paths := range u.state {
		for i, p := range paths {
			if p == logicalPath {
				u.state[d] = append(paths[:i], paths[i+1:]...)
				if len(u.state[d]) == 0 {
					delete(u.state, d)
				}
				break
			}
		}
	}

	for _, p := range u.state[dig] {
		if p == logicalPath {
			return
		}
	}
	u.state[dig] = append(u.state[dig], logicalPath)
}

func (u *Updater) addFixity(opts AddOptions, primaryDigest, contentSourcePath string, isNewBlob bool) error {
	if len(opts.FixityAlgorithms) == 0 || !isNewBlob {
		return nil
	}
	contentPath, ok := u.existingManifestPath(primaryDigest)
	if !ok {
		return fmt.Errorf("inventory: internal error: no manifest entry for freshly staged digest %s", primaryDigest)
	}

	for _, algo := range opts.FixityAlgorithms {
		altDigest, err := digest.SumFile(algo, contentSourcePath)
		if err != nil {
			return fmt.Errorf("inventory: computing fixity digest: %w", err)
		}
		if u.fixity == nil {
			u.fixity = map[string]DigestMap{}
		}
		if u.fixity[string(algo)] == nil {
			u.fixity[string(algo)] = DigestMap{}
		}
		m := u.fixity[string(algo)]
		found := false
		for _, p := range m[altDigest] {
			if p == contentPath {
				found = true
				break
			}
		}
		if !found {
			m[altDigest] = append(m[altDigest], contentPath)
		}
	}
	return nil
}

// RemoveFile removes logicalPath from the working version state. The
// underlying blob remains in the manifest and reachable from earlier
// versions.
func (u *Updater) RemoveFile(logicalPath string) error {
	for d, paths := range u.state {
		for i, p := range paths {
			if p == logicalPath {
				u.state[d] = append(paths[:i], paths[i+1:]...)
				if len(u.state[d]) == 0 {
					delete(u.state, d)
				}
				return nil
			}
		}
	}
	return fmt.Errorf("inventory: logical path %q not found in current version state", logicalPath)
}

// RenameFile moves a logical path to a new name within the working
// state. No content is touched - only the state-level mapping changes.
func (u *Updater) RenameFile(src, dst string) error {
	if err := digest.ValidateLogicalPath(dst); err != nil {
		return err
	}

	var dig string
	found := false
	for d, paths := range u.state {
		for _, p := range paths {
			if p == src {
				dig = d
				found = true
			}
		}
	}
	if !found {
		return fmt.Errorf("inventory: logical path %q not found in current version state", src)
	}

	if err := u.RemoveFile(src); err != nil {
		return err
	}
	u.addToState(dig, dst)
	return nil
}

// ReinstateFile restores the logical path src as it existed in a prior
// version to dst in the working state, without re-staging content: the
// blob is already in the manifest.
func (u *Updater) ReinstateFile(version VersionNum, src, dst string) error {
	if err := digest.ValidateLogicalPath(dst); err != nil {
		return err
	}

	ver, ok := u.base.Version(version)
	if !ok {
		return fmt.Errorf("inventory: version %s not found", version)
	}

	var dig string
	found := false
	for d, paths := range ver.State {
		for _, p := range paths {
			if p == src {
				dig = d
				found = true
			}
		}
	}
	if !found {
		return fmt.Errorf("inventory: logical path %q not found in version %s", src, version)
	}

	u.addToState(dig, dst)
	return nil
}

// ClearState empties the working version state, used to implement
// putObject's whole-state replacement. The manifest (and therefore
// every blob ever committed) is untouched.
func (u *Updater) ClearState() {
	u.state = DigestMap{}
}

// BuildNewInventory validates and returns the next inventory. now is
// injected via internal/clock so tests can produce deterministic
// output.
func (u *Updater) BuildNewInventory(now time.Time, info VersionInfo) (*Inventory, error) {
	next := &Inventory{
		ID:               u.base.ID,
		Type:             OCFLVersion,
		DigestAlgorithm:  u.algorithm,
		ContentDirectory: u.contentDirectory,
		Manifest:         u.manifest,
		Fixity:           u.fixity,
		Versions:         make(map[string]*Version, len(u.base.Versions)+1),
		Head:             u.nextVersion,
		PaddingWidth:     u.nextVersion.Padding,
	}
	next.SetObjectRootPath(u.base.ObjectRootPath())

	for k, v := range u.base.Versions {
		next.Versions[k] = v.Clone()
	}
	next.Versions[u.nextVersion.String()] = &Version{
		Created: now,
		Message: info.Message,
		User:    info.User,
		State:   u.state,
	}

	if err := Validate(next); err != nil {
		return nil, fmt.Errorf("inventory: built inventory failed validation: %w", err)
	}

	return next, nil
}

func copyOrLink(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
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
