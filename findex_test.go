package findex_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/findexlabs/findex"
	"github.com/findexlabs/findex/memory/inmemory"
)

func intCodec(wordLength int) findex.Codec[int] {
	toBytes := func(v int) []byte {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v))

		return b
	}

	fromBytes := func(b []byte) (int, error) {
		return int(binary.BigEndian.Uint64(b)), nil
	}

	return findex.DummyCodec(wordLength, toBytes, fromBytes)
}

func newTestEngine(t *testing.T) *findex.Engine[int] {
	t.Helper()

	seed := findex.RandomSecret(findex.SeedLength)
	defer seed.Destroy()

	engine, err := findex.NewEngine(seed, inmemory.New(), 32, intCodec(32))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	return engine
}

// TestInsertThenSearch inserts a set of values under one keyword and expects
// to read them all back via Search.
func TestInsertThenSearch(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	err := engine.Insert(ctx, []findex.KeywordBinding[int]{
		{Keyword: []byte("cat"), Values: findex.NewSet(1, 3, 5)},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	res, err := engine.Search(ctx, [][]byte{[]byte("cat")})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	got := res["cat"]
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3: %v", len(got), got)
	}

	for _, v := range []int{1, 3, 5} {
		if _, ok := got[v]; !ok {
			t.Fatalf("missing %d in search result %v", v, got)
		}
	}
}

// TestSearchUnknownKeywordIsEmpty expects an empty result, not an error, for
// a keyword that was never inserted.
func TestSearchUnknownKeywordIsEmpty(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	res, err := engine.Search(ctx, [][]byte{[]byte("ghost")})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(res["ghost"]) != 0 {
		t.Fatalf("expected empty result set for unknown keyword, got %v", res["ghost"])
	}
}

// TestDeleteRemovesValue checks that deleting one value out of several
// leaves the rest of the set intact.
func TestDeleteRemovesValue(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	err := engine.Insert(ctx, []findex.KeywordBinding[int]{
		{Keyword: []byte("cat"), Values: findex.NewSet(1, 2, 3)},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	err = engine.Delete(ctx, []findex.KeywordBinding[int]{
		{Keyword: []byte("cat"), Values: findex.NewSet(2)},
	})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}

	res, err := engine.Search(ctx, [][]byte{[]byte("cat")})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	got := res["cat"]
	if _, ok := got[2]; ok {
		t.Fatalf("expected 2 to be removed, got %v", got)
	}

	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2: %v", len(got), got)
	}
}

// TestMultipleKeywordsIndependent checks that inserting values under two
// keywords keeps their result sets separate.
func TestMultipleKeywordsIndependent(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	err := engine.Insert(ctx, []findex.KeywordBinding[int]{
		{Keyword: []byte("cat"), Values: findex.NewSet(1)},
		{Keyword: []byte("dog"), Values: findex.NewSet(2)},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	res, err := engine.Search(ctx, [][]byte{[]byte("cat"), []byte("dog")})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if _, ok := res["cat"][1]; !ok {
		t.Fatalf("missing cat:1")
	}

	if _, ok := res["dog"][2]; !ok {
		t.Fatalf("missing dog:2")
	}

	if _, ok := res["cat"][2]; ok {
		t.Fatalf("cat search leaked dog's value")
	}
}

// TestRepeatedInsertIsIdempotentUnderSet checks that inserting the same
// value twice for one keyword must not duplicate it in the result, since the
// backing type is a Set.
func TestRepeatedInsertIsIdempotentUnderSet(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	for i := 0; i < 2; i++ {
		err := engine.Insert(ctx, []findex.KeywordBinding[int]{
			{Keyword: []byte("cat"), Values: findex.NewSet(9)},
		})
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	res, err := engine.Search(ctx, [][]byte{[]byte("cat")})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(res["cat"]) != 1 {
		t.Fatalf("expected exactly one value, got %v", res["cat"])
	}
}

func TestEngineClearPreservesData(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	err := engine.Insert(ctx, []findex.KeywordBinding[int]{
		{Keyword: []byte("cat"), Values: findex.NewSet(1)},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	engine.Clear()

	res, err := engine.Search(ctx, [][]byte{[]byte("cat")})
	if err != nil {
		t.Fatalf("Search after Clear: %v", err)
	}

	if _, ok := res["cat"][1]; !ok {
		t.Fatalf("Clear should only drop the warm cache, not the backend's data")
	}
}

func TestDenseCodecRoundtrip(t *testing.T) {
	ctx := context.Background()

	seed := findex.RandomSecret(findex.SeedLength)
	defer seed.Destroy()

	toBytes := func(v int) []byte {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v))

		return b
	}

	fromBytes := func(b []byte) (int, error) {
		return int(binary.BigEndian.Uint64(b)), nil
	}

	codec := findex.DenseCodec(24, toBytes, fromBytes)

	engine, err := findex.NewEngine(seed, inmemory.New(), 24, codec)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	err = engine.Insert(ctx, []findex.KeywordBinding[int]{
		{Keyword: []byte("cat"), Values: findex.NewSet(1, 2, 3, 4, 5)},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	res, err := engine.Search(ctx, [][]byte{[]byte("cat")})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(res["cat"]) != 5 {
		t.Fatalf("len(res[cat]) = %d, want 5: %v", len(res["cat"]), res["cat"])
	}
}
