// Package layout implements pluggable object-id-to-storage-path
// mappings, mirroring the OCFL storage root extension mechanism: a
// repository picks one layout at creation time and every object's
// location on disk (or in a bucket) is a pure function of its ID under
// that layout.
package layout

import (
	"encoding/json"
	"fmt"
)

// Layout maps an OCFL object ID to the path of its object root,
// relative to the storage root. Implementations are registered by
// extension name and constructed via Init from the extension's
// persisted config.json, so a repository can be reopened without the
// caller re-specifying how it lays out objects.
type Layout interface {
	// Name identifies the layout, e.g. "0002-flat-direct-storage-layout".
	Name() string
	// Describe returns a short human-readable summary, mirroring the
	// "description" field OCFL extensions publish about themselves.
	Describe() string
	// Init configures the layout from its extension config document.
	// A nil or empty config selects the layout's defaults, except for
	// NTupleOmitPrefixLayout, whose delimiter has no default and which
	// returns an error for a nil or empty config.
	Init(config json.RawMessage) error
	// Map computes the object root path for objectID. It must be a
	// pure function: the same ID always maps to the same path for the
	// lifetime of a storage root.
	Map(objectID string) (string, error)
}

// registry of layout constructors keyed by extension name.
var registry = map[string]func() Layout{}

// Register adds a layout constructor to the registry. Called from each
// layout implementation's init function.
func Register(name string, ctor func() Layout) {
	registry[name] = ctor
}

// Lookup constructs the named layout, ready for Init.
func Lookup(name string) (Layout, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("layout: unknown storage layout extension %q", name)
	}
	return ctor(), nil
}
