package audit

import (
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Pseudonymizer derives a stable, non-reversible reference for an actor ID so
// audit sinks never store the raw identifier. The same (key, id) pair always
// yields the same reference, which keeps per-actor audit trails joinable.
type Pseudonymizer struct {
	key []byte
}

// NewPseudonymizer builds a pseudonymizer with a deployment-scoped secret
// key. Rotating the key severs the link between old and new audit trails.
func NewPseudonymizer(key []byte) *Pseudonymizer {
	return &Pseudonymizer{key: append([]byte(nil), key...)}
}

// Ref returns a short base58 reference for id, or AnonymousRef for an empty
// id. Keyed blake2b keeps the mapping non-invertible without the key.
func (p *Pseudonymizer) Ref(id string) string {
	if id == "" {
		return AnonymousRef
	}
	h, err := blake2b.New(16, p.key)
	if err != nil {
		// Only possible with a key over 64 bytes; fall back to unkeyed.
		h, _ = blake2b.New(16, nil)
	}
	h.Write([]byte(id))
	return base58.Encode(h.Sum(nil))
}
