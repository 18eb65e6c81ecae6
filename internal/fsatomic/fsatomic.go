// Package fsatomic persists a root seed to disk durably: write to a temp
// file in the target directory, fsync, then atomically rename over the
// destination. Adapted from the teacher's pkg/fs atomic-write-then-rename
// pattern (pkg/fs/atomic_write.go), narrowed to the one file this module
// needs to write durably and delegated to
// github.com/natefinch/atomic for the rename step itself.
package fsatomic

import (
	"bytes"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

// SeedPerm is the file mode new seed files are created with: readable and
// writable only by the owner, since the file holds raw key material.
const SeedPerm = 0o600

// WriteSeed durably writes seed to path, replacing any existing file at
// that path in a single atomic rename. Intended for
// [github.com/findexlabs/findex.Secret.Bytes] output, which the caller is
// responsible for destroying once this call returns.
func WriteSeed(path string, seed []byte) error {
	if len(seed) == 0 {
		return fmt.Errorf("fsatomic: refusing to write an empty seed to %s", path)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(seed)); err != nil {
		return fmt.Errorf("fsatomic: write %s: %w", path, err)
	}

	return os.Chmod(path, SeedPerm)
}

// ReadSeed reads back a seed previously written by [WriteSeed].
func ReadSeed(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fsatomic: read %s: %w", path, err)
	}

	return b, nil
}
