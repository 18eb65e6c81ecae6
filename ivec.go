package findex

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
)

var (
	errShortHeader    = errors.New("header word shorter than 16 bytes")
	errInvertedHeader = errors.New("header stop < start")
)

// headerSize is the number of header bytes carrying start/stop:
// start (u64 big-endian) || stop (u64 big-endian) in the first 16 bytes of
// the header word; the rest is zero padding.
const headerSize = 16

// header is the in-word record at an IVec's base address.
//
// start is reserved for a future truncation/compaction operation and is
// always zero in this implementation; it is still parsed and written so the
// on-disk format stays forward-compatible.
type header struct {
	start uint64
	stop  uint64
}

func (h header) len() uint64 { return h.stop - h.start }

func (h header) encode(wordLength int) Word {
	w := make(Word, wordLength)
	binary.BigEndian.PutUint64(w[0:8], h.start)
	binary.BigEndian.PutUint64(w[8:16], h.stop)

	return w
}

func decodeHeader(w Word, addr Address) (header, error) {
	if len(w) < headerSize {
		return header{}, parsingError(addr, errShortHeader)
	}

	h := header{
		start: binary.BigEndian.Uint64(w[0:8]),
		stop:  binary.BigEndian.Uint64(w[8:16]),
	}
	if h.stop < h.start {
		return header{}, parsingError(addr, errInvertedHeader)
	}

	return h, nil
}

// IVec is a client-side, append-only vector materialized over a single
// base address in an encrypted [Memory]: one header word plus consecutive
// value-slot words. Push uses optimistic compare-and-swap retry; Read uses
// a two-phase batch read that avoids a header round-trip when the local
// header cache is warm.
//
// An IVec caches its last-known header to save a round-trip on the common
// path; the cache is purely an optimization; staleness is always detected
// and corrected.
type IVec struct {
	base Address
	mem  Memory

	mu     sync.Mutex // protects cached, never held across a Memory call
	cached *header

	pushes, retries uint64 // observability only
}

// NewIVec returns a handle for the vector based at addr, over mem. The
// header cache starts cold; the first Push or Read warms it.
func NewIVec(addr Address, mem Memory) *IVec {
	return &IVec{base: addr, mem: mem}
}

func (v *IVec) snapshotCached() *header {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cached == nil {
		return nil
	}

	h := *v.cached

	return &h
}

func (v *IVec) setCached(h header) {
	v.mu.Lock()
	v.cached = &h
	v.mu.Unlock()
}

// Stats reports the number of completed Push calls and the number of
// optimistic-retry iterations they took in total. Observability only.
func (v *IVec) Stats() (pushes, retries uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.pushes, v.retries
}

// Push appends values at the tip of the vector. Retries indefinitely on
// guard mismatch; a mismatch is normal control flow, not an error.
func (v *IVec) Push(ctx context.Context, values []Word) error {
	if len(values) == 0 {
		return nil
	}

	old := v.snapshotCached()

	for {
		var oldWord Word
		if old != nil {
			oldWord = old.encode(v.wordLength(values))
		}

		newHeader := header{stop: uint64(len(values))}
		if old != nil {
			newHeader.start = old.start
			newHeader.stop = old.stop + uint64(len(values))
		}

		bindings := make([]Binding, 0, len(values)+1)
		for i, val := range values {
			bindings = append(bindings, Binding{
				Address: v.base.Add(newHeader.stop - uint64(len(values)) + 1 + uint64(i)),
				Word:    val,
			})
		}

		bindings = append(bindings, Binding{Address: v.base, Word: newHeader.encode(len(values[0]))})

		observed, err := v.mem.GuardedWrite(ctx, Binding{Address: v.base, Word: oldWord}, bindings)
		if err != nil {
			return err
		}

		if wordsEqual(observed, oldWord) {
			v.setCached(newHeader)
			v.mu.Lock()
			v.pushes++
			v.mu.Unlock()

			return nil
		}

		// Guard mismatch: a concurrent writer moved the tip. Parse the
		// observed header and retry against it.
		v.mu.Lock()
		v.retries++
		v.mu.Unlock()

		if observed == nil {
			old = nil

			continue
		}

		observedHeader, herr := decodeHeader(observed, v.base)
		if herr != nil {
			return herr
		}

		old = &observedHeader
		v.setCached(observedHeader)
	}
}

func (v *IVec) wordLength(values []Word) int {
	if len(values) == 0 {
		return headerSize
	}

	return len(values[0])
}

func wordsEqual(a, b Word) bool {
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

// Read returns the vector's current contents in append order. A two-phase
// batch read avoids a header round-trip when the cache is warm, while
// remaining correct when it is stale.
func (v *IVec) Read(ctx context.Context) ([]Word, error) {
	cached := v.snapshotCached()

	var assumedStart, assumedStop uint64
	if cached != nil {
		assumedStart, assumedStop = cached.start, cached.stop
	}

	addrs := make([]Address, 0, assumedStop-assumedStart+1)
	addrs = append(addrs, v.base)

	for i := assumedStart; i < assumedStop; i++ {
		addrs = append(addrs, v.base.Add(1+i))
	}

	phaseA, err := v.mem.BatchRead(ctx, addrs)
	if err != nil {
		return nil, err
	}

	headerWord := phaseA[0]
	if headerWord == nil {
		// Vector does not exist yet: empty.
		v.setCached(header{})

		return nil, nil
	}

	fresh, err := decodeHeader(headerWord, v.base)
	if err != nil {
		return nil, err
	}

	v.setCached(fresh)

	if fresh.start == assumedStart && fresh.stop == assumedStop {
		// Cache agreed with the backend: reassemble directly.
		slots := make([]Word, fresh.len())
		for i := range slots {
			w := phaseA[1+i]
			if w == nil {
				return nil, missingValueError(v.base.Add(fresh.start + 1 + uint64(i)))
			}

			slots[i] = w
		}

		return slots, nil
	}

	// Phase B: the cache was stale. Fetch whatever the fresh range needs
	// that phase A did not already cover.
	have := make(map[Address]Word, len(phaseA))
	for i, a := range addrs {
		if phaseA[i] != nil {
			have[a] = phaseA[i]
		}
	}

	var missing []Address

	for i := fresh.start; i < fresh.stop; i++ {
		a := v.base.Add(1 + i)
		if _, ok := have[a]; !ok {
			missing = append(missing, a)
		}
	}

	if len(missing) > 0 {
		phaseB, berr := v.mem.BatchRead(ctx, missing)
		if berr != nil {
			return nil, berr
		}

		for i, a := range missing {
			if phaseB[i] != nil {
				have[a] = phaseB[i]
			}
		}
	}

	slots := make([]Word, fresh.len())

	for i := range slots {
		a := v.base.Add(fresh.start + 1 + uint64(i))

		w, ok := have[a]
		if !ok || w == nil {
			return nil, missingValueError(a)
		}

		slots[i] = w
	}

	return slots, nil
}
