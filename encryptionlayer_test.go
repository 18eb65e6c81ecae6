package findex

import (
	"context"
	"testing"
)

func newTestEncryptionLayer(t *testing.T, mem Memory, wordLength int) *EncryptionLayer {
	t.Helper()

	seed := RandomSecret(SeedLength)
	defer seed.Destroy()

	el, err := NewEncryptionLayer(seed, mem, wordLength)
	if err != nil {
		t.Fatalf("NewEncryptionLayer: %v", err)
	}

	return el
}

// TestPermuteUnpermuteRoundtrip checks that the address permutation is a
// genuine bijection, invertible by the same key, not an accidental
// near-identity.
func TestPermuteUnpermuteRoundtrip(t *testing.T) {
	el := newTestEncryptionLayer(t, newFakeMemory(), 32)

	addr := RandomAddress()

	permuted := el.permute(addr)
	if permuted == addr {
		t.Fatalf("permute returned the input unchanged (not a real permutation)")
	}

	back := el.unpermute(permuted)
	if back != addr {
		t.Fatalf("unpermute(permute(a)) = %x, want %x", back, addr)
	}
}

func TestEncryptionLayerHidesAddressesFromBackend(t *testing.T) {
	mem := newFakeMemory()
	el := newTestEncryptionLayer(t, mem, 32)

	addr := RandomAddress()
	word := testWord(32, 7)

	ctx := context.Background()

	_, err := el.GuardedWrite(ctx, Binding{Address: addr}, []Binding{{Address: addr, Word: word}})
	if err != nil {
		t.Fatalf("GuardedWrite: %v", err)
	}

	mem.mu.Lock()
	_, plaintextAddrPresent := mem.words[addr]
	mem.mu.Unlock()

	if plaintextAddrPresent {
		t.Fatalf("backend stored a word under the plaintext address; expected only the permuted address")
	}

	got, err := el.BatchRead(ctx, []Address{addr})
	if err != nil {
		t.Fatalf("BatchRead: %v", err)
	}

	if !wordsEqual(got[0], word) {
		t.Fatalf("BatchRead roundtrip = %v, want %v", got[0], word)
	}
}

func TestEncryptionLayerGuardedWriteRejectsWrongGuard(t *testing.T) {
	mem := newFakeMemory()
	el := newTestEncryptionLayer(t, mem, 32)
	ctx := context.Background()
	addr := RandomAddress()

	w1 := testWord(32, 1)
	w2 := testWord(32, 2)

	if _, err := el.GuardedWrite(ctx, Binding{Address: addr}, []Binding{{Address: addr, Word: w1}}); err != nil {
		t.Fatalf("initial write: %v", err)
	}

	observed, err := el.GuardedWrite(ctx, Binding{Address: addr}, []Binding{{Address: addr, Word: w2}})
	if err != nil {
		t.Fatalf("second write: %v", err)
	}

	if !wordsEqual(observed, w1) {
		t.Fatalf("observed = %v, want %v", observed, w1)
	}

	got, err := el.BatchRead(ctx, []Address{addr})
	if err != nil || !wordsEqual(got[0], w1) {
		t.Fatalf("expected unchanged word %v, got %v (err=%v)", w1, got[0], err)
	}
}
