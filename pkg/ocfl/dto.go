package ocfl

import (
	"time"

	"ocfl/internal/digest"
	"ocfl/internal/inventory"
)

// ObjectDetails summarizes an object's identity and version history,
// shaped for a caller that has no reason to see the internal inventory
// representation.
type ObjectDetails struct {
	ID               string
	DigestAlgorithm  digest.Algorithm
	ContentDirectory string
	Head             inventory.VersionNum
	Versions         []VersionDetails
}

// VersionDetails summarizes one version of an object.
type VersionDetails struct {
	Number  inventory.VersionNum
	Created time.Time
	Message string
	User    *inventory.User
	Files   []string
}

func newVersionDetails(v inventory.VersionNum, ver *inventory.Version) VersionDetails {
	files := make([]string, 0, len(ver.State))
	for _, paths := range ver.State {
		files = append(files, paths...)
	}
	return VersionDetails{
		Number:  v,
		Created: ver.Created,
		Message: ver.Message,
		User:    ver.User,
		Files:   files,
	}
}

func newObjectDetails(inv *inventory.Inventory) *ObjectDetails {
	details := &ObjectDetails{
		ID:               inv.ID,
		DigestAlgorithm:  inv.DigestAlgorithm,
		ContentDirectory: inv.ResolveContentDirectory(),
		Head:             inv.Head,
	}
	for _, v := range inv.VersionNums() {
		if ver, ok := inv.Version(v); ok {
			details.Versions = append(details.Versions, newVersionDetails(v, ver))
		}
	}
	return details
}
