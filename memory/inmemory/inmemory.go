// Package inmemory provides the reference [Memory] adapter: a
// mutex-protected in-process map, with GuardedWrite implemented as a
// critical section. Intended for tests and examples, not for production
// durability.
package inmemory

import (
	"context"
	"sync"

	"github.com/findexlabs/findex"
)

// Store is an in-process, mutex-protected address/word map.
type Store struct {
	mu    sync.Mutex
	words map[findex.Address]findex.Word
}

// New returns an empty Store.
func New() *Store {
	return &Store{words: make(map[findex.Address]findex.Word)}
}

// BatchRead implements [findex.Memory].
func (s *Store) BatchRead(_ context.Context, addrs []findex.Address) ([]findex.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]findex.Word, len(addrs))
	for i, a := range addrs {
		if w, ok := s.words[a]; ok {
			out[i] = cloneWord(w)
		}
	}

	return out, nil
}

// GuardedWrite implements [findex.Memory]. The whole check-then-write
// sequence runs under s.mu, making it atomic with respect to every other
// caller.
func (s *Store) GuardedWrite(_ context.Context, guard findex.Binding, bindings []findex.Binding) (findex.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	observed := s.words[guard.Address]

	if wordsEqual(observed, guard.Word) {
		// Deduplicate so the last binding for a repeated address wins,
		// per the memory contract.
		dedup := make(map[findex.Address]findex.Word, len(bindings))
		order := make([]findex.Address, 0, len(bindings))

		for _, b := range bindings {
			if _, ok := dedup[b.Address]; !ok {
				order = append(order, b.Address)
			}

			dedup[b.Address] = b.Word
		}

		for _, a := range order {
			s.words[a] = cloneWord(dedup[a])
		}
	}

	return cloneWord(observed), nil
}

func cloneWord(w findex.Word) findex.Word {
	if w == nil {
		return nil
	}

	out := make(findex.Word, len(w))
	copy(out, w)

	return out
}

func wordsEqual(a, b findex.Word) bool {
	if (a == nil) != (b == nil) {
		return false
	}

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
