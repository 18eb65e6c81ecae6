package redisstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/findexlabs/findex"
	"github.com/findexlabs/findex/internal/memtest"
	"github.com/findexlabs/findex/memory/redisstore"
)

// redisAddr mirrors the source test's REDIS_HOST env var convention
// (original_source/src/memory/redis_store.rs get_redis_url).
func redisAddr() string {
	if v := os.Getenv("REDIS_HOST"); v != "" {
		return v + ":6379"
	}

	return "localhost:6379"
}

func TestConformance(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	probe, err := redisstore.Connect(ctx, redisAddr())
	if err != nil {
		t.Skipf("no redis reachable at %s, skipping: %v", redisAddr(), err)
	}

	_ = probe.Close()

	memtest.Conformance(t, func(t *testing.T) findex.Memory {
		t.Helper()

		s, err := redisstore.Connect(context.Background(), redisAddr())
		if err != nil {
			t.Fatalf("Connect: %v", err)
		}

		t.Cleanup(func() { _ = s.Close() })

		return s
	})
}
