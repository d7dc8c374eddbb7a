// Package validate implements fsck-style validation of an OCFL
// object, accumulating every problem found rather than stopping at
// the first one.
package validate

import (
	"context"
	"errors"
	"fmt"
	"io"

	"ocfl/internal/digest"
	"ocfl/internal/inventory"
	"ocfl/internal/storage"
)

// Mode selects how thoroughly Validate checks an object.
type Mode int

const (
	// Shallow re-checks the in-memory invariants inventory.Validate
	// already enforces on load.
	Shallow Mode = iota
	// Deep additionally streams every version's content through the
	// storage engine, verifying each file's digest against the
	// manifest.
	Deep
)

// Issue is one problem found while validating an object. Fatal issues
// mean the object cannot be trusted as internally consistent; non-fatal
// issues are informational (e.g. a content stream that failed to close).
type Issue struct {
	Path    string
	Message string
	Fatal   bool
}

// Report accumulates every Issue found during a Validate call.
type Report struct {
	Issues []Issue
}

// Valid reports whether the report contains no fatal issues.
func (r *Report) Valid() bool {
	for _, issue := range r.Issues {
		if issue.Fatal {
			return false
		}
	}
	return true
}

func (r *Report) addFatal(path, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Path: path, Message: fmt.Sprintf(format, args...), Fatal: true})
}

func (r *Report) addWarning(path, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Path: path, Message: fmt.Sprintf(format, args...), Fatal: false})
}

// Validate checks the object identified by objectID against mode.
func Validate(ctx context.Context, engine storage.Engine, objectID string, mode Mode) (*Report, error) {
	report := &Report{}

	inv, err := engine.LoadInventory(ctx, objectID)
	if err != nil {
		report.addFatal(objectID, "failed to load inventory: %v", err)
		return report, nil
	}

	if err := inventory.Validate(inv); err != nil {
		report.addFatal(objectID, "inventory invariant violation: %v", err)
	}

	for _, v := range inv.VersionNums() {
		versionInv, err := engine.LoadInventoryVersion(ctx, objectID, v)
		if err != nil {
			report.addFatal(v.String(), "failed to load version inventory: %v", err)
			continue
		}
		if err := inventory.Validate(versionInv); err != nil {
			report.addFatal(v.String(), "version inventory invariant violation: %v", err)
		}
	}

	if mode == Deep {
		validateContent(ctx, engine, inv, report)
	}

	return report, nil
}

func validateContent(ctx context.Context, engine storage.Engine, inv *inventory.Inventory, report *Report) {
	for _, v := range inv.VersionNums() {
		if err := ctx.Err(); err != nil {
			report.addFatal(v.String(), "validation cancelled: %v", err)
			return
		}

		streams, err := engine.GetObjectStreams(ctx, inv, v)
		if err != nil {
			report.addFatal(v.String(), "failed to open version content: %v", err)
			continue
		}

		for logicalPath, stream := range streams {
			path := fmt.Sprintf("%s/%s", v, logicalPath)
			_, err := io.Copy(io.Discard, stream)
			closeErr := stream.Close()

			var fixityErr *digest.FixityError
			if errors.As(err, &fixityErr) {
				report.addFatal(path, "fixity check failed: %v", fixityErr)
			} else if err != nil {
				report.addFatal(path, "failed to read content: %v", err)
			}
			if closeErr != nil && !errors.As(err, &fixityErr) {
				report.addWarning(path, "failed to close content stream: %v", closeErr)
			}
		}
	}
}
