// Package memtest is a shared conformance and concurrency suite that every
// findex.Memory backend adapter runs against itself, adapted from the
// teacher's internal/testutil harness-and-clock pattern: a small set of
// composable checks any backend's test file can call with `t.Run`.
package memtest

import (
	"context"
	"sync"
	"testing"

	"github.com/findexlabs/findex"
)

const wordLength = 32

func word(b byte) findex.Word {
	w := make(findex.Word, wordLength)
	for i := range w {
		w[i] = b
	}

	return w
}

// Conformance runs every property in this package against a fresh backend
// produced by newMem for each subtest.
func Conformance(t *testing.T, newMem func(t *testing.T) findex.Memory) {
	t.Helper()

	t.Run("GuardAtomicity", func(t *testing.T) { GuardAtomicity(t, newMem(t)) })
	t.Run("CorrectGuardAccepts", func(t *testing.T) { CorrectGuardAccepts(t, newMem(t)) })
	t.Run("WrongGuardRejects", func(t *testing.T) { WrongGuardRejects(t, newMem(t)) })
	t.Run("BatchReadOrdering", func(t *testing.T) { BatchReadOrdering(t, newMem(t)) })
}

// GuardAtomicity checks that N concurrent writers racing a guarded write
// keyed on "absent" produce exactly one winner (the one that observes nil),
// and that the final stored word is that winner's.
func GuardAtomicity(t *testing.T, mem findex.Memory) {
	t.Helper()

	const n = 64

	addr := findex.RandomAddress()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		winWord findex.Word
	)

	start := make(chan struct{})

	for i := 0; i < n; i++ {
		i := i

		wg.Add(1)

		go func() {
			defer wg.Done()
			<-start

			v := word(byte(i))

			observed, err := mem.GuardedWrite(ctx, findex.Binding{Address: addr}, []findex.Binding{{Address: addr, Word: v}})
			if err != nil {
				t.Errorf("guarded write: %v", err)

				return
			}

			if observed == nil {
				mu.Lock()
				winners++
				winWord = v
				mu.Unlock()
			}
		}()
	}

	close(start)
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}

	got, err := mem.BatchRead(ctx, []findex.Address{addr})
	if err != nil {
		t.Fatalf("batch read: %v", err)
	}

	if !bytesEqual(got[0], winWord) {
		t.Fatalf("stored word does not match the winner's write")
	}
}

// CorrectGuardAccepts checks that a guarded write whose guard word matches
// the currently stored word is applied, and reports the observed guard.
func CorrectGuardAccepts(t *testing.T, mem findex.Memory) {
	t.Helper()

	ctx := context.Background()
	addr := findex.RandomAddress()
	w1 := word(1)
	w2 := word(2)

	observed, err := mem.GuardedWrite(ctx, findex.Binding{Address: addr}, []findex.Binding{{Address: addr, Word: w1}})
	if err != nil || observed != nil {
		t.Fatalf("initial write: observed=%v err=%v", observed, err)
	}

	observed, err = mem.GuardedWrite(ctx, findex.Binding{Address: addr, Word: w1}, []findex.Binding{{Address: addr, Word: w2}})
	if err != nil {
		t.Fatalf("second write: %v", err)
	}

	if !bytesEqual(observed, w1) {
		t.Fatalf("expected observed guard word %v, got %v", w1, observed)
	}

	got, err := mem.BatchRead(ctx, []findex.Address{addr})
	if err != nil || !bytesEqual(got[0], w2) {
		t.Fatalf("expected stored word %v, got %v (err=%v)", w2, got[0], err)
	}
}

// WrongGuardRejects checks that a guarded write whose guard word does not
// match the currently stored word is rejected and leaves storage unchanged.
func WrongGuardRejects(t *testing.T, mem findex.Memory) {
	t.Helper()

	ctx := context.Background()
	addr := findex.RandomAddress()
	w1 := word(1)
	w2 := word(2)

	_, err := mem.GuardedWrite(ctx, findex.Binding{Address: addr}, []findex.Binding{{Address: addr, Word: w1}})
	if err != nil {
		t.Fatalf("initial write: %v", err)
	}

	observed, err := mem.GuardedWrite(ctx, findex.Binding{Address: addr}, []findex.Binding{{Address: addr, Word: w2}})
	if err != nil {
		t.Fatalf("rejected write: %v", err)
	}

	if !bytesEqual(observed, w1) {
		t.Fatalf("expected observed guard word %v, got %v", w1, observed)
	}

	got, err := mem.BatchRead(ctx, []findex.Address{addr})
	if err != nil || !bytesEqual(got[0], w1) {
		t.Fatalf("expected unchanged stored word %v, got %v (err=%v)", w1, got[0], err)
	}
}

// BatchReadOrdering checks that BatchRead returns results in the same order
// as the requested addresses, with absent addresses reading nil.
func BatchReadOrdering(t *testing.T, mem findex.Memory) {
	t.Helper()

	ctx := context.Background()
	a1, a2, a3 := findex.RandomAddress(), findex.RandomAddress(), findex.RandomAddress()

	_, err := mem.GuardedWrite(ctx, findex.Binding{Address: a2}, []findex.Binding{{Address: a2, Word: word(7)}})
	if err != nil {
		t.Fatalf("seed write: %v", err)
	}

	got, err := mem.BatchRead(ctx, []findex.Address{a1, a2, a3})
	if err != nil {
		t.Fatalf("batch read: %v", err)
	}

	if got[0] != nil || got[2] != nil {
		t.Fatalf("expected absent addresses to read nil, got %v / %v", got[0], got[2])
	}

	if !bytesEqual(got[1], word(7)) {
		t.Fatalf("expected a2 == word(7), got %v", got[1])
	}
}

func bytesEqual(a, b findex.Word) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
