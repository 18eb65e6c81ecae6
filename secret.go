package findex

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/sha3"
)

// SeedLength is the size, in bytes, of the root secret a caller supplies to
// [NewEngine]. Using 64-byte keys lets the address-permutation and
// word-encryption subkeys both draw on enough entropy to remain
// post-quantum-comfortable with the AES primitive.
const SeedLength = 64

// subkeyLengthP is the length of the address-permutation subkey (one
// AES-256 key).
const subkeyLengthP = 32

// subkeyLengthE is the length of the word-encryption subkey: two AES-256
// keys concatenated, K_e1 || K_e2, consumed by XTS-AES-256.
const subkeyLengthE = 64

// Secret holds sensitive key material in a [memguard.LockedBuffer]: pinned
// off the Go heap's normal GC path, mlocked against swap, and zeroized when
// Destroy is called. This is the Go analogue of the source's
// `Secret<LENGTH>` (a pinned, zeroize-on-drop heap box).
type Secret struct {
	buf *memguard.LockedBuffer
}

// NewSecret allocates a zero-filled secret of the given length.
func NewSecret(length int) *Secret {
	return &Secret{buf: memguard.NewBuffer(length)}
}

// RandomSecret allocates a secret filled with cryptographically secure
// random bytes.
func RandomSecret(length int) *Secret {
	return &Secret{buf: memguard.NewBufferRandom(length)}
}

// SecretFromBytes moves the given bytes into protected memory, zeroizing
// the source slice. Mirrors the source's `from_unprotected_bytes`.
func SecretFromBytes(b []byte) *Secret {
	return &Secret{buf: memguard.NewBufferFromBytes(b)}
}

// Bytes exposes the secret's bytes.
//
// The returned slice aliases protected memory; it remains valid until
// Destroy is called. As with the source's `to_unprotected_bytes`, once a
// caller copies these bytes elsewhere they are the caller's responsibility
// to protect.
func (s *Secret) Bytes() []byte { return s.buf.Bytes() }

// Destroy wipes and releases the secret's memory. Safe to call more than
// once.
func (s *Secret) Destroy() { s.buf.Destroy() }

// deriveSubkeys splits a root seed into the address-permutation subkey K_p
// and the word-encryption subkey K_e, using a domain-separated KDF.
//
// Grounded on original_source/src/encryption_layer.rs, which derives both
// subkeys from one seed via `SymmetricKey::derive(&seed, &[label])`. This
// port uses SHA3-256 in counter mode for the same purpose.
func deriveSubkeys(seed *Secret) (kP, kE *Secret) {
	kP = SecretFromBytes(kdf(seed.Bytes(), 0, subkeyLengthP))
	kE = SecretFromBytes(kdf(seed.Bytes(), 1, subkeyLengthE))

	return kP, kE
}

// kdf derives outLen bytes from seed, domain-separated by label, using
// SHA3-256(label || counter || seed) in counter mode.
func kdf(seed []byte, label byte, outLen int) []byte {
	out := make([]byte, 0, outLen)

	for counter := uint32(0); len(out) < outLen; counter++ {
		h := sha3.New256()
		h.Write([]byte{label})

		var ctr [4]byte
		binary.BigEndian.PutUint32(ctr[:], counter)
		h.Write(ctr[:])
		h.Write(seed)

		out = h.Sum(out)
	}

	return out[:outLen]
}

// hashKeyword reduces keyword bytes to an [Address] via SHA3-256, truncated
// to [AddressLength]. Deterministic and public: the secret protection comes
// entirely from address permutation inside [EncryptionLayer].
func hashKeyword(keyword []byte) Address {
	sum := sha3.Sum256(keyword)

	var a Address
	copy(a[:], sum[:AddressLength])

	return a
}

// randomSeedBytes reads SeedLength cryptographically random bytes, for
// in-package tests that need fresh root-secret bytes.
func randomSeedBytes() []byte {
	b := make([]byte, SeedLength)
	if _, err := rand.Read(b); err != nil {
		panic("findex: failed to read random seed: " + err.Error())
	}

	return b
}
