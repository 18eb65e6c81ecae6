package findex

import (
	"crypto/rand"
	"encoding/hex"
)

// AddressLength is the fixed size, in bytes, of an [Address]. It is pinned
// to 16 because the address permutation is a single AES-256 block
// encryption (see encryptionlayer.go), and AES's block size is 16 bytes.
const AddressLength = 16

// Address is the opaque fixed-length identifier of a memory cell, visible
// to the backend only after permutation (see [EncryptionLayer]).
//
// The zero Address is a valid value (all-zero bytes); it carries no special
// meaning on its own.
type Address [AddressLength]byte

// Add returns the address offset by n, interpreted as a little-endian
// modular add over the byte array. Used to enumerate IVec slot addresses
// relative to a vector's base address.
func (a Address) Add(n uint64) Address {
	var out Address
	copy(out[:], a[:])

	carry := n
	for i := range out {
		sum := uint64(out[i]) + carry&0xff
		out[i] = byte(sum)
		carry = carry>>8 + sum>>8
		if carry == 0 {
			break
		}
	}

	return out
}

// Bytes returns a's contents as a slice sharing the array's backing store.
func (a *Address) Bytes() []byte { return a[:] }

// String renders the address as hex, for logging and test failure output.
func (a Address) String() string { return hex.EncodeToString(a[:]) }

// RandomAddress returns a cryptographically random address, used by tests
// exercising the memory contract directly.
func RandomAddress() Address {
	var a Address
	if _, err := rand.Read(a[:]); err != nil {
		panic("findex: failed to read random bytes: " + err.Error())
	}

	return a
}
