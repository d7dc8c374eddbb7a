package layout

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PairTreeName is the extension name used for PairTreeLayout, mirrored
// on the classic California Digital Library pairtree specification
// that inspired the later numbered OCFL extensions.
const PairTreeName = "pairtree-storage-layout"

func init() {
	Register(PairTreeName, func() Layout { return &PairTreeLayout{} })
}

// PairTreeLayout implements the pairtree algorithm: an object ID is
// "cleaned" (unsafe characters percent-substituted), split into
// two-character segments, and each segment becomes a directory level,
// with the full cleaned ID as the final leaf directory. This keeps
// directory fan-out low and bounded regardless of ID length.
type PairTreeLayout struct {
	// UppercaseHex controls whether percent-substituted bytes are
	// rendered as upper or lowercase hex; lowercase is the default.
	UppercaseHex bool
}

type pairTreeConfig struct {
	UppercaseHex bool `json:"uppercaseHex,omitempty"`
}

// Name implements Layout.
func (*PairTreeLayout) Name() string { return PairTreeName }

// Describe implements Layout.
func (*PairTreeLayout) Describe() string {
	return "Object identifiers are cleaned and split into two-character pairtree segments, bounding directory fan-out."
}

// Init implements Layout.
func (p *PairTreeLayout) Init(config json.RawMessage) error {
	if len(config) == 0 {
		return nil
	}
	var cfg pairTreeConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("layout: pairtree config: %w", err)
	}
	p.UppercaseHex = cfg.UppercaseHex
	return nil
}

// Map implements Layout.
func (p *PairTreeLayout) Map(objectID string) (string, error) {
	if objectID == "" {
		return "", fmt.Errorf("layout: object id must not be empty")
	}
	clean := pairTreeClean(objectID, p.UppercaseHex)

	var segments []string
	for len(clean) > 2 {
		segments = append(segments, clean[:2])
		clean = clean[2:]
	}
	if len(clean) > 0 {
		segments = append(segments, clean)
	}

	full := pairTreeClean(objectID, p.UppercaseHex)
	return strings.Join(segments, "/") + "/" + full, nil
}

// pairTreeUnsafe lists the printable characters that pairTreeClean
// substitutes. Each of them, like control characters, '/', ':' and
// '.', is replaced by "^" followed by its hex byte value; a space
// becomes "+", and every other character is left untouched.
const pairTreeUnsafe = `"*+,<=>?\^|` + "`" + `~`

func pairTreeClean(id string, uppercase bool) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r <= 0x1f || r == 0x7f:
			writeHexEscape(&b, byte(r), uppercase)
		case r == '/':
			writeHexEscape(&b, '/', uppercase)
		case r == ':':
			writeHexEscape(&b, ':', uppercase)
		case r == '.':
			writeHexEscape(&b, '.', uppercase)
		case strings.ContainsRune(pairTreeUnsafe, r):
			writeHexEscape(&b, byte(r), uppercase)
		case r == ' ':
			b.WriteByte('+')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func writeHexEscape(b *strings.Builder, c byte, uppercase bool) {
	const lower = "0123456789abcdef"
	const upper = "0123456789ABCDEF"
	table := lower
	if uppercase {
		table = upper
	}
	b.WriteByte('^')
	b.WriteByte(table[c>>4])
	b.WriteByte(table[c&0x0f])
}
