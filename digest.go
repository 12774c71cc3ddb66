package metadefender

import (
	_ "crypto/sha256" // registers the hash used by go-digest
	"strings"

	"github.com/opencontainers/go-digest"
)

// Fingerprint identifies file contents. It is the upper-case hex SHA-256 of
// the bytes and is used as the hash lookup key.
type Fingerprint string

// ComputeFingerprint returns the fingerprint of data.
func ComputeFingerprint(data []byte) Fingerprint {
	return Fingerprint(strings.ToUpper(digest.SHA256.FromBytes(data).Encoded()))
}

// ParseFingerprint validates a hex SHA-256 digest given in either case.
func ParseFingerprint(s string) (Fingerprint, error) {
	s = strings.TrimSpace(s)
	if err := digest.SHA256.Validate(strings.ToLower(s)); err != nil {
		return "", NewValidationError("invalid sha256 fingerprint", err)
	}
	return Fingerprint(strings.ToUpper(s)), nil
}

func (f Fingerprint) String() string { return string(f) }
