package serialization

import (
	"crypto/sha256"
	"fmt"
	"io"
)

// ComputeChecksum returns the SHA-256 of data.
func ComputeChecksum(data []byte) [ChecksumSize]byte {
	return sha256.Sum256(data)
}

// ComputeChecksumReader hashes exactly n bytes from r.
func ComputeChecksumReader(r io.Reader, n int64) ([ChecksumSize]byte, error) {
	h := sha256.New()
	var sum [ChecksumSize]byte
	copied, err := io.CopyN(h, r, n)
	if err != nil {
		return sum, fmt.Errorf("hash data section (%d of %d bytes): %w", copied, n, err)
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// ValidateChecksum returns ErrChecksumMismatch unless computed equals stored.
func ValidateChecksum(computed, stored [ChecksumSize]byte) error {
	if computed != stored {
		return fmt.Errorf("%w: stored %x, computed %x", ErrChecksumMismatch, stored[:4], computed[:4])
	}
	return nil
}
