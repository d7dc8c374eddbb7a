package layout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashedNTupleName is the extension name for HashedNTupleLayout,
// implementing OCFL storage layout extension
// 0004-hashed-n-tuple-storage-layout.
const HashedNTupleName = "0004-hashed-n-tuple-storage-layout"

func init() {
	Register(HashedNTupleName, func() Layout { return &HashedNTupleLayout{} })
}

// HashedNTupleLayout maps an object ID by hashing it, then splitting a
// prefix of the resulting hex digest into fixed-size tuples that
// become nested directories, with the full digest as the leaf. Unlike
// PairTreeLayout the mapping carries no information about the ID
// itself, keeping directory names short and free of characters that
// need escaping.
type HashedNTupleLayout struct {
	DigestAlgorithm string
	TupleSize       int
	NumberOfTuples  int
	ShortObjectRoot bool
}

type hashedNTupleConfig struct {
	DigestAlgorithm string `json:"digestAlgorithm,omitempty"`
	TupleSize       int    `json:"tupleSize,omitempty"`
	NumberOfTuples  int    `json:"numberOfTuples,omitempty"`
	ShortObjectRoot bool   `json:"shortObjectRoot,omitempty"`
}

// Name implements Layout.
func (*HashedNTupleLayout) Name() string { return HashedNTupleName }

// Describe implements Layout.
func (*HashedNTupleLayout) Describe() string {
	return "Object identifiers are hashed and the digest is split into n-tuples to form nested storage directories."
}

// Init implements Layout.
func (h *HashedNTupleLayout) Init(config json.RawMessage) error {
	h.DigestAlgorithm = "sha256"
	h.TupleSize = 3
	h.NumberOfTuples = 3
	h.ShortObjectRoot = false

	if len(config) == 0 {
		return nil
	}
	var cfg hashedNTupleConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("layout: hashed n-tuple config: %w", err)
	}
	if cfg.DigestAlgorithm != "" {
		h.DigestAlgorithm = cfg.DigestAlgorithm
	}
	if cfg.TupleSize > 0 {
		h.TupleSize = cfg.TupleSize
	}
	if cfg.NumberOfTuples > 0 {
		h.NumberOfTuples = cfg.NumberOfTuples
	}
	h.ShortObjectRoot = cfg.ShortObjectRoot
	return nil
}

// Map implements Layout.
func (h *HashedNTupleLayout) Map(objectID string) (string, error) {
	if objectID == "" {
		return "", fmt.Errorf("layout: object id must not be empty")
	}
	if h.DigestAlgorithm != "" && h.DigestAlgorithm != "sha256" {
		return "", fmt.Errorf("layout: unsupported hashed n-tuple digest algorithm %q", h.DigestAlgorithm)
	}

	sum := sha256.Sum256([]byte(objectID))
	digest := hex.EncodeToString(sum[:])

	path := ""
	rest := digest
	for i := 0; i < h.NumberOfTuples && len(rest) >= h.TupleSize; i++ {
		path += rest[:h.TupleSize] + "/"
		rest = rest[h.TupleSize:]
	}

	if h.ShortObjectRoot {
		return path + rest, nil
	}
	return path + digest, nil
}
