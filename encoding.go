package findex

import (
	"encoding/binary"
	"fmt"
)

// Op tags a stored binding as an insertion or a deletion. Decoding folds
// the log: a later Delete of a value cancels earlier Inserts of the same
// value.
type Op uint8

const (
	// OpInsert marks a value as added.
	OpInsert Op = 1
	// OpDelete marks a value as removed.
	OpDelete Op = 0
)

// Set is a plain set of comparable values, the Go analogue of the source's
// HashSet<Value>.
type Set[V comparable] map[V]struct{}

// NewSet builds a [Set] from the given values.
func NewSet[V comparable](values ...V) Set[V] {
	s := make(Set[V], len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}

	return s
}

// ToBytes converts a Value to its byte representation. FromBytes is its
// partial inverse; together they play the role of the source's
// `TryFrom<&[u8]> + AsRef<[u8]>` bound on Value.
type ToBytes[V comparable] func(V) []byte

// FromBytes parses a Value out of a byte slice, failing with
// [KindConversion] on malformed input.
type FromBytes[V comparable] func([]byte) (V, error)

// DummyEncode serializes (op, values) into one [Word] per value: the
// canonical, sparse encoding, one value reserved per word.
//
// Byte 0 of each word is 1 for Insert, 0 for Delete; byte 1 is the value's
// length; bytes [2:2+n] hold the value. Returns [ErrValueTooLong] if any
// value exceeds wordLength-2 bytes.
func DummyEncode[V comparable](op Op, values Set[V], wordLength int, toBytes ToBytes[V]) ([]Word, error) {
	maxValueLen := wordLength - 2
	if maxValueLen < 0 || wordLength > 257 {
		return nil, fmt.Errorf("findex: WORD_LENGTH %d unsuitable for dummy encoding", wordLength)
	}

	words := make([]Word, 0, len(values))

	for v := range values {
		b := toBytes(v)
		if len(b) > maxValueLen {
			return nil, valueTooLongError(len(b), maxValueLen)
		}

		w := make(Word, wordLength)
		w[0] = byte(op)
		w[1] = byte(len(b))
		copy(w[2:2+len(b)], b)
		words = append(words, w)
	}

	return words, nil
}

// DummyDecode folds a sequence of words produced by [DummyEncode] back into
// a final value set, applying Insert/Delete semantics in sequence order: a
// Delete only removes values inserted earlier in the same sequence.
func DummyDecode[V comparable](words []Word, fromBytes FromBytes[V]) (Set[V], error) {
	result := make(Set[V], len(words))

	for _, w := range words {
		if len(w) < 2 {
			continue
		}

		n := int(w[1])
		if 2+n > len(w) {
			return nil, conversionError(Address{}, fmt.Errorf("findex: value length %d exceeds word", n))
		}

		v, err := fromBytes(w[2 : 2+n])
		if err != nil {
			return nil, conversionError(Address{}, err)
		}

		if w[0] == byte(OpInsert) {
			result[v] = struct{}{}
		} else {
			delete(result, v)
		}
	}

	return result, nil
}

// DenseEncode is an alternative to [DummyEncode]: a length-prefixed,
// multi-value-per-word layout that packs several small values into one
// word instead of reserving a whole word per value. Grounded on
// original_source/src/encoding.rs `good_encode`, with its debug prints and
// unchecked bound arithmetic removed.
//
// The on-wire unit is a 2-byte big-endian metadata field per value,
// `(length << 1) | opBit`, followed by that many payload bytes, packed
// back-to-back across word boundaries.
func DenseEncode[V comparable](op Op, values Set[V], wordLength int, toBytes ToBytes[V]) ([]Word, error) {
	if wordLength < 3 {
		return nil, fmt.Errorf("findex: WORD_LENGTH %d too small for dense encoding", wordLength)
	}

	var flat []byte

	opBit := uint16(0)
	if op == OpInsert {
		opBit = 1
	}

	for v := range values {
		b := toBytes(v)
		if len(b) >= 1<<15 {
			return nil, valueTooLongError(len(b), 1<<15-1)
		}

		if len(b) == 0 && op == OpDelete {
			// An all-zero metadata field doubles as DenseDecode's padding
			// marker, so a zero-length Delete entry cannot be told apart
			// from padding. Use DummyEncode for value types that can encode
			// to zero bytes.
			return nil, conversionError(Address{}, fmt.Errorf("findex: dense encoding cannot represent a zero-length delete value"))
		}

		meta := (uint16(len(b)) << 1) | opBit

		var metaBytes [2]byte
		binary.BigEndian.PutUint16(metaBytes[:], meta)
		flat = append(flat, metaBytes[0], metaBytes[1])
		flat = append(flat, b...)
	}

	if len(flat) == 0 {
		return nil, nil
	}

	words := make([]Word, 0, (len(flat)+wordLength-1)/wordLength)
	for off := 0; off < len(flat); off += wordLength {
		end := off + wordLength
		if end > len(flat) {
			end = len(flat)
		}

		w := make(Word, wordLength)
		copy(w, flat[off:end])
		words = append(words, w)
	}

	return words, nil
}

// DenseDecode inverts [DenseEncode]. See that function's doc for the wire
// format. words may be the concatenation of several DenseEncode outputs:
// an all-zero metadata field is the padding that ends one output, and
// decoding resumes at the next word boundary.
func DenseDecode[V comparable](words []Word, fromBytes FromBytes[V]) (Set[V], error) {
	var flat []byte
	for _, w := range words {
		flat = append(flat, w...)
	}

	wordLength := 0
	if len(words) > 0 {
		wordLength = len(words[0])
	}

	result := make(Set[V])

	i := 0
	for i < len(flat) {
		if i+2 > len(flat) {
			if flat[i] == 0 {
				break // a single trailing padding byte
			}

			return nil, conversionError(Address{}, fmt.Errorf("findex: dense encoding: truncated metadata at offset %d", i))
		}

		meta := binary.BigEndian.Uint16(flat[i : i+2])
		if meta == 0 {
			if wordLength == 0 {
				break
			}

			i = (i/wordLength + 1) * wordLength

			continue
		}

		opBit := meta & 1
		n := int(meta >> 1)
		i += 2

		if i+n > len(flat) {
			return nil, conversionError(Address{}, fmt.Errorf("findex: dense encoding: truncated value at offset %d", i))
		}

		v, err := fromBytes(flat[i : i+n])
		if err != nil {
			return nil, conversionError(Address{}, err)
		}

		i += n

		if opBit == 1 {
			result[v] = struct{}{}
		} else {
			delete(result, v)
		}
	}

	return result, nil
}
