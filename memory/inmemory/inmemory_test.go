package inmemory_test

import (
	"testing"

	"github.com/findexlabs/findex"
	"github.com/findexlabs/findex/internal/memtest"
	"github.com/findexlabs/findex/memory/inmemory"
)

func TestConformance(t *testing.T) {
	memtest.Conformance(t, func(t *testing.T) findex.Memory {
		t.Helper()

		return inmemory.New()
	})
}
