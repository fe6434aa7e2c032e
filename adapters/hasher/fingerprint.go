package hasher

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/nanooro/dagnerai/domain"
)

const prefix = "sha256:"

// Fingerprint digests prompts for log correlation. Size is the number of hex
// characters kept; zero or anything past the full digest keeps all of it.
type Fingerprint struct {
	Size int
}

var _ domain.Hasher = Fingerprint{}

// New returns a Fingerprint with the full SHA-256 digest.
func New() Fingerprint { return Fingerprint{} }

// Short returns a Fingerprint suited to log lines.
func Short() Fingerprint { return Fingerprint{Size: 16} }

func (f Fingerprint) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if f.Size > 0 && f.Size < len(digest) {
		digest = digest[:f.Size]
	}
	return prefix + digest
}
