package findex

import (
	"encoding/binary"
	"testing"
)

func intToBytes(v int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))

	return b
}

func intFromBytes(b []byte) (int, error) {
	if len(b) != 8 {
		return 0, conversionError(Address{}, ErrParsing)
	}

	return int(binary.BigEndian.Uint64(b)), nil
}

func TestDummyEncodeDecodeRoundtrip(t *testing.T) {
	values := NewSet(1, 2, 3)

	words, err := DummyEncode(OpInsert, values, 32, intToBytes)
	if err != nil {
		t.Fatalf("DummyEncode: %v", err)
	}

	if len(words) != len(values) {
		t.Fatalf("len(words) = %d, want %d", len(words), len(values))
	}

	got, err := DummyDecode(words, intFromBytes)
	if err != nil {
		t.Fatalf("DummyDecode: %v", err)
	}

	for v := range values {
		if _, ok := got[v]; !ok {
			t.Fatalf("decoded set missing %d", v)
		}
	}
}

func TestDummyDecodeAppliesDeleteAfterInsert(t *testing.T) {
	insert, err := DummyEncode(OpInsert, NewSet(7), 32, intToBytes)
	if err != nil {
		t.Fatalf("encode insert: %v", err)
	}

	del, err := DummyEncode(OpDelete, NewSet(7), 32, intToBytes)
	if err != nil {
		t.Fatalf("encode delete: %v", err)
	}

	got, err := DummyDecode(append(insert, del...), intFromBytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(got) != 0 {
		t.Fatalf("expected empty set after delete, got %v", got)
	}
}

func TestDenseEncodeRejectsZeroLengthDelete(t *testing.T) {
	_, err := DenseEncode(OpDelete, NewSet(unitValue{}), 16, unitToBytes)
	if err == nil {
		t.Fatalf("expected an error encoding a zero-length delete value")
	}

	var ferr *Error
	if !asError(err, &ferr) || ferr.Kind() != KindConversion {
		t.Fatalf("expected KindConversion, got %v", err)
	}
}

func TestDummyEncodeValueTooLong(t *testing.T) {
	big := make([]byte, 40)
	toBytes := func(int) []byte { return big }

	_, err := DummyEncode(OpInsert, NewSet(1), 32, toBytes)
	if err == nil {
		t.Fatalf("expected value-too-long error")
	}

	var ferr *Error
	if !asError(err, &ferr) || ferr.Kind() != KindValueTooLong {
		t.Fatalf("expected KindValueTooLong, got %v", err)
	}
}

func TestDenseEncodeDecodeRoundtrip(t *testing.T) {
	values := NewSet(100, 200, 300, 400)

	words, err := DenseEncode(OpInsert, values, 16, intToBytes)
	if err != nil {
		t.Fatalf("DenseEncode: %v", err)
	}

	if len(words) < 2 {
		t.Fatalf("expected dense packing to span multiple words, got %d", len(words))
	}

	got, err := DenseDecode(words, intFromBytes)
	if err != nil {
		t.Fatalf("DenseDecode: %v", err)
	}

	for v := range values {
		if _, ok := got[v]; !ok {
			t.Fatalf("decoded dense set missing %d", v)
		}
	}
}

func TestDenseDecodeAppliesDeleteAfterInsert(t *testing.T) {
	insert, err := DenseEncode(OpInsert, NewSet(9), 16, intToBytes)
	if err != nil {
		t.Fatalf("encode insert: %v", err)
	}

	del, err := DenseEncode(OpDelete, NewSet(9), 16, intToBytes)
	if err != nil {
		t.Fatalf("encode delete: %v", err)
	}

	got, err := DenseDecode(append(insert, del...), intFromBytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(got) != 0 {
		t.Fatalf("expected empty set after delete, got %v", got)
	}
}

// unitValue is a comparable value whose byte encoding is zero-length, the
// edge case a WORD_LENGTH-2-sized value budget still allows.
type unitValue struct{}

func unitToBytes(unitValue) []byte { return []byte{} }

func unitFromBytes(b []byte) (unitValue, error) {
	if len(b) != 0 {
		return unitValue{}, conversionError(Address{}, ErrParsing)
	}

	return unitValue{}, nil
}

func TestDummyDecodeDeleteCancelsZeroLengthInsert(t *testing.T) {
	insert, err := DummyEncode(OpInsert, NewSet(unitValue{}), 32, unitToBytes)
	if err != nil {
		t.Fatalf("encode insert: %v", err)
	}

	del, err := DummyEncode(OpDelete, NewSet(unitValue{}), 32, unitToBytes)
	if err != nil {
		t.Fatalf("encode delete: %v", err)
	}

	got, err := DummyDecode(append(insert, del...), unitFromBytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(got) != 0 {
		t.Fatalf("expected zero-length value to be deleted, got %v", got)
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}

	*target = e

	return true
}
