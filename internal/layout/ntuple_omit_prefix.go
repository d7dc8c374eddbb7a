package layout

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NTupleOmitPrefixName is the extension name for NTupleOmitPrefixLayout,
// implementing OCFL storage layout extension
// 0007-n-tuple-omit-prefix-storage-layout.
const NTupleOmitPrefixName = "0007-n-tuple-omit-prefix-storage-layout"

func init() {
	Register(NTupleOmitPrefixName, func() Layout { return &NTupleOmitPrefixLayout{} })
}

// Zero-padding modes for NTupleOmitPrefixLayout.
const (
	ZeroPaddingLeft  = "left"
	ZeroPaddingRight = "right"
	ZeroPaddingNone  = "none"
)

// NTupleOmitPrefixLayout strips a delimiter-terminated prefix from the
// object ID (e.g. a namespace URI), then builds nested n-tuple
// directories from what remains (zero-padded to fill every tuple),
// followed by the prefix-omitted ID as the leaf directory name.
// Grounded on NTupleOmitPrefixStorageLayoutExtension.java: with left
// padding and a 3-2 tuple configuration, "namespace:12345" becomes
// "012/345/12345".
type NTupleOmitPrefixLayout struct {
	Delimiter      string
	TupleSize      int
	NumberOfTuples int
	ZeroPadding    string
	Reverse        bool
}

type nTupleOmitPrefixConfig struct {
	Delimiter      string `json:"delimiter"`
	TupleSize      int    `json:"tupleSize"`
	NumberOfTuples int    `json:"numberOfTuples"`
	ZeroPadding    string `json:"zeroPadding,omitempty"`
	ReverseObjectRoot bool `json:"reverseObjectRoot,omitempty"`
}

// Name implements Layout.
func (*NTupleOmitPrefixLayout) Name() string { return NTupleOmitPrefixName }

// Describe implements Layout.
func (*NTupleOmitPrefixLayout) Describe() string {
	return "This storage root extension describes an OCFL storage layout combining a pairtree-like root directory structure derived from prefix-omitted object identifiers, followed by the prefix-omitted object identifier itself."
}

// Init implements Layout.
func (n *NTupleOmitPrefixLayout) Init(config json.RawMessage) error {
	var cfg nTupleOmitPrefixConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("layout: n-tuple omit prefix config: %w", err)
	}
	if strings.TrimSpace(cfg.Delimiter) == "" {
		return fmt.Errorf("layout: delimiter configuration must not be empty")
	}
	if cfg.TupleSize <= 0 {
		return fmt.Errorf("layout: tupleSize configuration must be greater than 0, got %d", cfg.TupleSize)
	}
	if cfg.NumberOfTuples <= 0 {
		return fmt.Errorf("layout: numberOfTuples configuration must be greater than 0, got %d", cfg.NumberOfTuples)
	}
	padding := cfg.ZeroPadding
	if padding == "" {
		padding = ZeroPaddingLeft
	}
	if padding != ZeroPaddingLeft && padding != ZeroPaddingRight && padding != ZeroPaddingNone {
		return fmt.Errorf("layout: zeroPadding must be %q, %q or %q, got %q", ZeroPaddingLeft, ZeroPaddingRight, ZeroPaddingNone, padding)
	}

	n.Delimiter = cfg.Delimiter
	n.TupleSize = cfg.TupleSize
	n.NumberOfTuples = cfg.NumberOfTuples
	n.ZeroPadding = padding
	n.Reverse = cfg.ReverseObjectRoot
	return nil
}

// Map implements Layout.
func (n *NTupleOmitPrefixLayout) Map(objectID string) (string, error) {
	if !strings.Contains(objectID, n.Delimiter) {
		return "", fmt.Errorf("layout: the delimiter %q cannot be found in %q", n.Delimiter, objectID)
	}

	parts := strings.Split(objectID, n.Delimiter)
	section := parts[len(parts)-1]
	if section == "" {
		return "", fmt.Errorf("layout: the delimiter %q is only found at the end of %q", n.Delimiter, objectID)
	}

	if n.Reverse {
		section = reverseString(section)
	}

	needed := n.TupleSize * n.NumberOfTuples
	if len(section) < needed {
		switch n.ZeroPadding {
		case ZeroPaddingLeft:
			section = strings.Repeat("0", needed-len(section)) + section
		case ZeroPaddingRight:
			section = section + strings.Repeat("0", needed-len(section))
		default:
			return "", fmt.Errorf("layout: zero padding is set to %q but %q is too short for %d tuples of size %d", ZeroPaddingNone, section, n.NumberOfTuples, n.TupleSize)
		}
	}

	var b strings.Builder
	for i := 0; i < n.NumberOfTuples; i++ {
		start := i * n.TupleSize
		b.WriteString(section[start : start+n.TupleSize])
		b.WriteByte('/')
	}
	b.WriteString(objectID[strings.LastIndex(objectID, n.Delimiter)+len(n.Delimiter):])

	return b.String(), nil
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
