package findex

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Codec bundles the encode/decode pair an [Engine] uses to translate
// between application values and the fixed-length words stored in the
// index.
type Codec[V comparable] struct {
	Encode func(Op, Set[V]) ([]Word, error)
	Decode func([]Word) (Set[V], error)
}

// DummyCodec builds the canonical, sparse one-value-per-word [Codec] (see
// [DummyEncode] / [DummyDecode]).
func DummyCodec[V comparable](wordLength int, toBytes ToBytes[V], fromBytes FromBytes[V]) Codec[V] {
	return Codec[V]{
		Encode: func(op Op, values Set[V]) ([]Word, error) {
			return DummyEncode(op, values, wordLength, toBytes)
		},
		Decode: func(words []Word) (Set[V], error) {
			return DummyDecode(words, fromBytes)
		},
	}
}

// DenseCodec builds the alternative, length-prefixed dense [Codec] (see
// [DenseEncode] / [DenseDecode]).
func DenseCodec[V comparable](wordLength int, toBytes ToBytes[V], fromBytes FromBytes[V]) Codec[V] {
	return Codec[V]{
		Encode: func(op Op, values Set[V]) ([]Word, error) {
			return DenseEncode(op, values, wordLength, toBytes)
		},
		Decode: func(words []Word) (Set[V], error) {
			return DenseDecode(words, fromBytes)
		},
	}
}

// Engine is the keyword -> vector dispatch layer: it owns one
// [EncryptionLayer] and a cache of warm [IVec] handles, and exposes Insert,
// Delete, and Search over arbitrary keywords.
//
// An *Engine is safe for concurrent use. Each keyword is processed
// independently; ordering between operations on different keywords is not
// guaranteed. A keyword's own operations are serialized only by the
// backend's guarded-write atomicity.
type Engine[V comparable] struct {
	el    *EncryptionLayer
	codec Codec[V]

	cacheMu sync.Mutex
	cache   map[Address]*IVec
}

// NewEngine builds an Engine from a root seed, a backend [Memory], the
// fixed word length the index will use, and the encode/decode codec for
// the application's Value type.
func NewEngine[V comparable](seed *Secret, mem Memory, wordLength int, codec Codec[V]) (*Engine[V], error) {
	el, err := NewEncryptionLayer(seed, mem, wordLength)
	if err != nil {
		return nil, err
	}

	return &Engine[V]{
		el:    el,
		codec: codec,
		cache: make(map[Address]*IVec),
	}, nil
}

// Clear purges the warm IVec cache. Purely an optimization: clearing it
// only affects performance, never correctness.
func (e *Engine[V]) Clear() {
	e.cacheMu.Lock()
	e.cache = make(map[Address]*IVec)
	e.cacheMu.Unlock()
}

func (e *Engine[V]) ivecFor(addr Address) *IVec {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	v, ok := e.cache[addr]
	if !ok {
		v = NewIVec(addr, e.el)
		e.cache[addr] = v
	}

	return v
}

// KeywordBinding is a single (keyword, values) assertion or retraction
// passed to [Engine.Insert] / [Engine.Delete].
type KeywordBinding[V comparable] struct {
	Keyword []byte
	Values  Set[V]
}

// Insert encodes and pushes each (keyword, values) pair. Every keyword is
// processed in its own goroutine; all are started before any is awaited.
// An encoding error for one keyword stops that keyword before any memory
// access and cancels the context passed to the other keywords' writes;
// partial failure across keywords is possible — callers needing
// all-or-nothing must restrict to a single keyword per call.
func (e *Engine[V]) Insert(ctx context.Context, bindings []KeywordBinding[V]) error {
	return e.push(ctx, OpInsert, bindings)
}

// Delete is the mirror of Insert using [OpDelete].
func (e *Engine[V]) Delete(ctx context.Context, bindings []KeywordBinding[V]) error {
	return e.push(ctx, OpDelete, bindings)
}

func (e *Engine[V]) push(ctx context.Context, op Op, bindings []KeywordBinding[V]) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, b := range bindings {
		b := b

		g.Go(func() error {
			words, err := e.codec.Encode(op, b.Values)
			if err != nil {
				return err
			}

			addr := hashKeyword(b.Keyword)
			v := e.ivecFor(addr)

			return v.Push(gctx, words)
		})
	}

	return g.Wait()
}

// Search looks up each keyword independently and concurrently, decoding
// its vector's contents into a value set. The result does not depend on
// concurrent operations over other keywords.
func (e *Engine[V]) Search(ctx context.Context, keywords [][]byte) (map[string]Set[V], error) {
	g, gctx := errgroup.WithContext(ctx)

	results := make([]Set[V], len(keywords))

	for i, kw := range keywords {
		i, kw := i, kw

		g.Go(func() error {
			addr := hashKeyword(kw)
			v := e.ivecFor(addr)

			words, err := v.Read(gctx)
			if err != nil {
				return err
			}

			set, err := e.codec.Decode(words)
			if err != nil {
				return err
			}

			results[i] = set

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]Set[V], len(keywords))
	for i, kw := range keywords {
		out[string(kw)] = results[i]
	}

	return out, nil
}
