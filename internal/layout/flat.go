package layout

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlatName is the extension name for FlatLayout.
const FlatName = "0002-flat-direct-storage-layout"

func init() {
	Register(FlatName, func() Layout { return &FlatLayout{} })
}

// FlatLayout maps an object ID directly to a directory of the same
// name. It is only safe when every object ID in the repository is
// already a valid, unique filesystem path segment.
type FlatLayout struct{}

// Name implements Layout.
func (*FlatLayout) Name() string { return FlatName }

// Describe implements Layout.
func (*FlatLayout) Describe() string {
	return "The OCFL object identifier is used as-is for the object root directory name."
}

// Init implements Layout. FlatLayout takes no configuration.
func (*FlatLayout) Init(json.RawMessage) error { return nil }

// Map implements Layout.
func (*FlatLayout) Map(objectID string) (string, error) {
	if objectID == "" {
		return "", fmt.Errorf("layout: object id must not be empty")
	}
	if strings.ContainsAny(objectID, "/\\") || objectID == "." || objectID == ".." {
		return "", fmt.Errorf("layout: object id %q is not safe to use directly as a path segment under the flat layout", objectID)
	}
	return objectID, nil
}
