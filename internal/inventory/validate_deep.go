package inventory

import "fmt"

// ValidateDeep runs Validate and then confirms every manifest content
// path is actually present in storage with its declared digest, via
// exists. It collects every problem found rather than stopping at the
// first one.
func ValidateDeep(inv *Inventory, exists ContentExistsFunc) []error {
	var errs []error
	if err := Validate(inv); err != nil {
		errs = append(errs, err)
	}

	for _, d := range inv.Manifest.SortedDigests() {
		for _, p := range inv.Manifest[d] {
			if err := exists(p, d); err != nil {
				errs = append(errs, fmt.Errorf("inventory: content path %s: %w", p, err))
			}
		}
	}

	return errs
}
