package findex

import "context"

// Word is the fixed-length opaque payload stored at a memory cell. Its
// length is chosen by the caller at [NewEngine] time and must be consistent
// across every address in one index.
type Word []byte

// Binding pairs an [Address] with the [Word] to store there.
type Binding struct {
	Address Address
	Word    Word
}

// Memory is the only system-boundary contract: an untrusted address/word
// store exposing a batched read and a guarded, atomic write. Both
// operations may block on I/O; callers pass a [context.Context] for
// cancellation.
//
// Implementations: [github.com/findexlabs/findex/memory/inmemory],
// [github.com/findexlabs/findex/memory/slotfile],
// [github.com/findexlabs/findex/memory/sqlitestore],
// [github.com/findexlabs/findex/memory/pgstore],
// [github.com/findexlabs/findex/memory/redisstore].
type Memory interface {
	// BatchRead returns, in the same order as addrs, the word stored at
	// each address, or a nil Word if none is stored. Duplicate addresses
	// must each receive an answer.
	BatchRead(ctx context.Context, addrs []Address) ([]Word, error)

	// GuardedWrite atomically applies bindings if and only if the word
	// currently stored at guard.Address equals guard.Word (nil guard.Word
	// means "currently absent"). It always returns the word observed at
	// guard.Address at decision time, regardless of whether the write
	// took effect. If bindings contains the same address twice, the last
	// entry wins.
	GuardedWrite(ctx context.Context, guard Binding, bindings []Binding) (Word, error)
}
