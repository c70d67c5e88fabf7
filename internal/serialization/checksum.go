package serialization

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// MetadataChecksum is the metadata key holding the data-section digest.
const MetadataChecksum = "checksum"

// ComputeChecksum returns the xxhash64 digest of data as 16 hex digits.
func ComputeChecksum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// ValidateChecksum compares the digest of data against stored.
// Returns ErrChecksumMismatch if they don't match.
func ValidateChecksum(data []byte, stored string) error {
	if got := ComputeChecksum(data); got != stored {
		return fmt.Errorf("%w: stored %s, computed %s", ErrChecksumMismatch, stored, got)
	}
	return nil
}
