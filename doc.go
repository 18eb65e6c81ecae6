// Package findex implements a searchable symmetric encryption (SSE) index:
// an encrypted multimap from keywords to sets of values, backed by an
// untrusted key-value store that sees only opaque fixed-length addresses
// and fixed-length encrypted words.
//
// # Basic usage
//
//	seed := findex.RandomSecret(findex.SeedLength)
//	mem := inmemory.New()
//	codec := findex.DummyCodec(128,
//	    func(v int) []byte { b := make([]byte, 8); binary.BigEndian.PutUint64(b, uint64(v)); return b },
//	    func(b []byte) (int, error) { return int(binary.BigEndian.Uint64(b)), nil },
//	)
//	engine, err := findex.NewEngine(seed, mem, 128, codec)
//	if err != nil {
//	    // handle
//	}
//
//	err = engine.Insert(ctx, []findex.KeywordBinding[int]{
//	    {Keyword: []byte("cat"), Values: findex.NewSet(1, 3, 5)},
//	})
//
//	res, err := engine.Search(ctx, [][]byte{[]byte("cat")})
//	// res["cat"] == {1, 3, 5}
//
// # Security model
//
// The server (whatever implements [Memory]) learns only access patterns
// over randomized, permuted addresses. It never sees plaintext keywords,
// values, or the correlation between a keyword and its address beyond what
// repeated access to the same permuted address reveals. This index does not
// attempt ORAM-level access-pattern hiding, forward/backward privacy, or
// server-side computation.
//
// # Concurrency
//
// [Engine], [EncryptionLayer], and [IVec] are all safe for concurrent use.
// Operations on different keywords are never ordered relative to each
// other; operations on the same keyword are serialized only by the
// backend's guarded-write atomicity.
package findex
