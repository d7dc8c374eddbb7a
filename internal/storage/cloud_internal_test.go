package storage

import (
	"testing"

	"github.com/dustin/go-humanize"
	"github.com/stretchr/testify/assert"
)

// Everything else in cloud.go talks to a real minio.Client/minio.Core,
// which have no lightweight in-pack fake to substitute; exercising
// StoreNewVersion/CommitMutableHead/etc. end-to-end needs a live or
// containerized S3-compatible endpoint (e.g. MinIO itself), so those
// paths are left to integration testing rather than unit tests here.
// calculatePartSize has no I/O and is fully testable in isolation.

func TestCalculatePartSizeSmallFile(t *testing.T) {
	partSize, numParts := calculatePartSize(50 * humanize.MiByte)
	assert.Equal(t, int64(minPartSize), partSize)
	assert.Equal(t, 5, numParts)
}

func TestCalculatePartSizeStaysAtMinimumUnderPartsCap(t *testing.T) {
	// 5 GiB at the 10 MiB starting part size would need 512 parts,
	// comfortably under the 10000 part cap, so part size should stay
	// at the minimum.
	partSize, numParts := calculatePartSize(5 * humanize.GiByte)
	assert.Equal(t, int64(minPartSize), partSize)
	assert.Equal(t, 512, numParts)
}

func TestCalculatePartSizeRaisesMaxPartsPastCeiling(t *testing.T) {
	// 5 TiB needs a part size beyond the 100 MiB ceiling to fit under
	// even a doubled parts cap, so the algorithm must raise maxParts
	// instead of growing partSize past the ceiling.
	totalSize := int64(5 * humanize.TiByte)
	partSize, numParts := calculatePartSize(totalSize)
	assert.Equal(t, int64(maxPartSize), partSize)
	assert.Greater(t, numParts, initialMaxParts)
	assert.GreaterOrEqual(t, int64(numParts)*partSize, totalSize)
}

func TestCalculatePartSizeNeverExceedsPartSizeCeiling(t *testing.T) {
	partSize, _ := calculatePartSize(5 * humanize.TiByte)
	assert.LessOrEqual(t, partSize, int64(maxPartSize))
}
