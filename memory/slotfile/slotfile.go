// Package slotfile is a [findex.Memory] adapter backed by a single mmap'd
// file: a fixed-capacity open-addressed slot table, multi-reader/
// single-writer, adapted from the teacher's pkg/slotcache design (mmap'd
// slot cache, cross-process mutual exclusion via flock, a fixed header
// plus a flat slot array) and narrowed to this module's simpler contract:
// no revisions, no secondary index, just (address -> word) with guarded
// compare-and-swap writes.
//
// Unlike slotcache, slotfile is meant as a durable (not throwaway) store:
// GuardedWrite holds an exclusive flock for its whole check-then-write
// sequence, and writes go straight into the mapped memory with no msync
// or fsync call (the OS flushes dirty pages on its own schedule; callers
// needing stronger durability should fsync the file themselves).
package slotfile

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/findexlabs/findex"
)

const (
	magic         = uint32(0x46584446) // "FXDF"
	headerSize    = 32
	slotHeaderLen = findex.AddressLength + 1 // address + occupied flag
	formatVersion = uint32(1)
)

// Store is a [findex.Memory] backed by one mmap'd file. The file layout is
// a fixed headerSize-byte header (magic, version, wordLength, capacity)
// followed by capacity slots of (occupied byte || address || word).
type Store struct {
	f    *os.File
	data []byte

	wordLength int
	capacity   int
	slotSize   int

	mu sync.Mutex // serializes writers within this process; flock serializes across processes
}

// Open opens or creates the slot file at path, sized to hold capacity
// entries of wordLength bytes each. Capacity is fixed for the life of the
// file: slotfile does not grow or rehash.
func Open(path string, capacity, wordLength int) (*Store, error) {
	if capacity <= 0 || wordLength <= 0 {
		return nil, fmt.Errorf("slotfile: capacity and wordLength must be positive")
	}

	slotSize := slotHeaderLen + wordLength
	fileSize := int64(headerSize + capacity*slotSize)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("slotfile: open: %w", err)
	}

	if err := initializeOrValidate(f, fileSize, capacity, wordLength); err != nil {
		_ = f.Close()

		return nil, err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fileSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("slotfile: mmap: %w", err)
	}

	return &Store{f: f, data: data, wordLength: wordLength, capacity: capacity, slotSize: slotSize}, nil
}

func initializeOrValidate(f *os.File, fileSize int64, capacity, wordLength int) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("slotfile: stat: %w", err)
	}

	if info.Size() == 0 {
		if err := f.Truncate(fileSize); err != nil {
			return fmt.Errorf("slotfile: truncate: %w", err)
		}

		var hdr [headerSize]byte
		binary.BigEndian.PutUint32(hdr[0:4], magic)
		binary.BigEndian.PutUint32(hdr[4:8], formatVersion)
		binary.BigEndian.PutUint32(hdr[8:12], uint32(wordLength))
		binary.BigEndian.PutUint64(hdr[12:20], uint64(capacity))

		if _, err := f.WriteAt(hdr[:], 0); err != nil {
			return fmt.Errorf("slotfile: write header: %w", err)
		}

		return nil
	}

	if info.Size() != fileSize {
		return fmt.Errorf("slotfile: existing file size %d does not match expected %d for capacity=%d wordLength=%d",
			info.Size(), fileSize, capacity, wordLength)
	}

	var hdr [headerSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("slotfile: read header: %w", err)
	}

	if binary.BigEndian.Uint32(hdr[0:4]) != magic {
		return fmt.Errorf("slotfile: bad magic: corrupt or not a slotfile")
	}

	if binary.BigEndian.Uint32(hdr[4:8]) != formatVersion {
		return fmt.Errorf("slotfile: incompatible format version %d", binary.BigEndian.Uint32(hdr[4:8]))
	}

	if int(binary.BigEndian.Uint32(hdr[8:12])) != wordLength || int(binary.BigEndian.Uint64(hdr[12:20])) != capacity {
		return fmt.Errorf("slotfile: file was created with a different wordLength/capacity")
	}

	return nil
}

// Close unmaps and closes the underlying file.
func (s *Store) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		return fmt.Errorf("slotfile: munmap: %w", err)
	}

	return s.f.Close()
}

func (s *Store) slotOffset(i int) int { return headerSize + i*s.slotSize }

// probe returns the slot index currently holding addr, or the first empty
// slot on the open-addressing probe sequence if addr is not present.
func (s *Store) probe(addr findex.Address) (idx int, occupied bool) {
	start := int(binary.BigEndian.Uint64(addr[:8]) % uint64(s.capacity))

	for step := 0; step < s.capacity; step++ {
		i := (start + step) % s.capacity
		off := s.slotOffset(i)

		if s.data[off] == 0 {
			return i, false
		}

		if findex.Address(s.data[off+1 : off+1+findex.AddressLength]) == addr {
			return i, true
		}
	}

	return -1, false
}

func (s *Store) readSlotWord(i int) findex.Word {
	off := s.slotOffset(i) + slotHeaderLen

	w := make(findex.Word, s.wordLength)
	copy(w, s.data[off:off+s.wordLength])

	return w
}

// BatchRead implements [findex.Memory]. Lock-free: mmap'd pages are read
// directly, relying on the OS to keep a single writer's stores visible to
// readers in this process's address space.
func (s *Store) BatchRead(_ context.Context, addrs []findex.Address) ([]findex.Word, error) {
	out := make([]findex.Word, len(addrs))

	for i, a := range addrs {
		idx, occupied := s.probe(a)
		if idx < 0 {
			return nil, fmt.Errorf("slotfile: table full, cannot probe for address %s", a)
		}

		if occupied {
			out[i] = s.readSlotWord(idx)
		}
	}

	return out, nil
}

// GuardedWrite implements [findex.Memory]. Exclusive both in-process
// (s.mu) and cross-process (flock on the underlying fd), so the whole
// check-then-write sequence is atomic with respect to every other writer.
func (s *Store) GuardedWrite(_ context.Context, guard findex.Binding, bindings []findex.Binding) (findex.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := unix.Flock(int(s.f.Fd()), unix.LOCK_EX); err != nil {
		return nil, fmt.Errorf("slotfile: flock: %w", err)
	}
	defer unix.Flock(int(s.f.Fd()), unix.LOCK_UN)

	gIdx, gOccupied := s.probe(guard.Address)
	if gIdx < 0 {
		return nil, fmt.Errorf("slotfile: table full, cannot probe for guard address %s", guard.Address)
	}

	var observed findex.Word
	if gOccupied {
		observed = s.readSlotWord(gIdx)
	}

	if !wordsEqual(observed, guard.Word) {
		return observed, nil
	}

	dedup := make(map[findex.Address]findex.Word, len(bindings))
	order := make([]findex.Address, 0, len(bindings))

	for _, b := range bindings {
		if _, ok := dedup[b.Address]; !ok {
			order = append(order, b.Address)
		}

		dedup[b.Address] = b.Word
	}

	for _, a := range order {
		idx, _ := s.probe(a)
		if idx < 0 {
			return nil, fmt.Errorf("slotfile: table full, cannot place address %s", a)
		}

		off := s.slotOffset(idx)
		s.data[off] = 1
		copy(s.data[off+1:off+1+findex.AddressLength], a[:])
		copy(s.data[off+slotHeaderLen:off+slotHeaderLen+s.wordLength], dedup[a])
	}

	return observed, nil
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
