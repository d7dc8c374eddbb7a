package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"ocfl/internal/digest"
)

// inventoryDoc mirrors Inventory's on-disk JSON shape. Go's
// encoding/json sorts map keys when marshaling, which is exactly the
// canonical, stable key ordering the OCFL sidecar digest depends on;
// no custom encoder is needed to get that guarantee.
type inventoryDoc struct {
	ID               string               `json:"id"`
	Type             string               `json:"type"`
	DigestAlgorithm  string               `json:"digestAlgorithm"`
	Head             string               `json:"head"`
	ContentDirectory string               `json:"contentDirectory,omitempty"`
	Manifest         DigestMap            `json:"manifest"`
	Fixity           map[string]DigestMap `json:"fixity,omitempty"`
	Versions         map[string]*Version  `json:"versions"`
}

// Marshal serializes inv to its canonical on-disk form: UTF-8, no BOM,
// sorted keys, 2-space indentation, trailing newline.
func Marshal(inv *Inventory) ([]byte, error) {
	doc := inventoryDoc{
		ID:               inv.ID,
		Type:             inv.Type,
		DigestAlgorithm:  string(inv.DigestAlgorithm),
		Head:             inv.Head.String(),
		ContentDirectory: inv.ContentDirectory,
		Manifest:         inv.Manifest,
		Fixity:           inv.Fixity,
		Versions:         inv.Versions,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("inventory: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses raw inventory JSON. objectRootPath is recorded as
// the inventory's transient storage location.
func Unmarshal(raw []byte, objectRootPath string) (*Inventory, error) {
	var doc inventoryDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("inventory: parse: %w", err)
	}

	head, err := ParseVersionNum(doc.Head)
	if err != nil {
		return nil, fmt.Errorf("inventory: invalid head: %w", err)
	}

	inv := &Inventory{
		ID:               doc.ID,
		Type:             doc.Type,
		DigestAlgorithm:  digest.Algorithm(doc.DigestAlgorithm),
		Head:             head,
		HeadStr:          doc.Head,
		ContentDirectory: doc.ContentDirectory,
		Manifest:         doc.Manifest,
		Fixity:           doc.Fixity,
		Versions:         doc.Versions,
		PaddingWidth:     head.Padding,
	}
	inv.SetObjectRootPath(objectRootPath)

	if inv.Manifest == nil {
		inv.Manifest = DigestMap{}
	}
	if inv.Versions == nil {
		inv.Versions = map[string]*Version{}
	}

	return inv, nil
}

// SidecarName returns the sidecar filename for the given algorithm,
// e.g. "inventory.json.sha512".
func SidecarName(algorithm digest.Algorithm) string {
	return "inventory.json." + string(algorithm)
}

// SidecarContent renders the sidecar file body: "<hex>\t<inventory.json>\n".
func SidecarContent(hexDigest string) []byte {
	return []byte(hexDigest + "\tinventory.json\n")
}

// ParseSidecar extracts the hex digest from sidecar content. It
// tolerates either a tab or plain whitespace separator, since sidecars
// produced by other OCFL implementations sometimes use a single space.
func ParseSidecar(content []byte) (string, error) {
	fields := strings.Fields(string(content))
	if len(fields) == 0 {
		return "", fmt.Errorf("inventory: empty sidecar file")
	}
	return fields[0], nil
}
