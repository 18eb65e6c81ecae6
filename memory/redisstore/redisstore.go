// Package redisstore is a [findex.Memory] adapter backed by Redis. Ported
// from original_source/src/memory/redis_store.rs: MGET for BatchRead, and
// the same Lua script for GuardedWrite, loaded once via SCRIPT LOAD and
// invoked by its SHA with EVALSHA.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/findexlabs/findex"
)

// guardedWriteScript is the Rust source's GUARDED_WRITE_LUA_SCRIPT, with
// the absent-value case narrowed to an absent guard: ARGV[1]/ARGV[2] are
// the guard address/value, ARGV[3] is the binding count, and ARGV[4:]
// alternate address/word pairs. The bindings are written only if the
// stored value equals the guard, or both are absent.
const guardedWriteScript = `
local guard_address = ARGV[1]
local guard_value = ARGV[2]
local length = ARGV[3]

local value = redis.call('GET', ARGV[1])

if (((value == false) and (guard_value == 'false')) or (guard_value == value)) then
	for i = 4, (length * 2) + 3, 2
	do
		redis.call('SET', ARGV[i], ARGV[i+1])
	end
end
return value
`

// absentSentinel is the guard-value argument sent when the guard word is
// nil, matching the Rust source's `b"false"` placeholder (a value no real
// encrypted word collides with in practice, since the script only compares
// it against the stored GET result, never stores it).
const absentSentinel = "false"

// Store is a [findex.Memory] backed by a Redis server.
type Store struct {
	client *redis.Client
	script *redis.Script
}

// Connect dials the Redis server at addr and loads the guarded-write
// script.
func Connect(ctx context.Context, addr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}

	script := redis.NewScript(guardedWriteScript)
	if err := script.Load(ctx, client).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: load script: %w", err)
	}

	return &Store{client: client, script: script}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

// BatchRead implements [findex.Memory] via MGET.
func (s *Store) BatchRead(ctx context.Context, addrs []findex.Address) ([]findex.Word, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = string(a.Bytes())
	}

	raw, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: mget: %w", err)
	}

	out := make([]findex.Word, len(raw))

	for i, v := range raw {
		if v == nil {
			continue
		}

		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("redisstore: unexpected reply type %T", v)
		}

		out[i] = findex.Word(s)
	}

	return out, nil
}

// GuardedWrite implements [findex.Memory] via EVALSHA of
// guardedWriteScript.
func (s *Store) GuardedWrite(ctx context.Context, guard findex.Binding, bindings []findex.Binding) (findex.Word, error) {
	guardValue := absentSentinel
	if guard.Word != nil {
		guardValue = string(guard.Word)
	}

	keys := make([]string, 0, len(bindings))

	args := make([]interface{}, 0, 3+2*len(bindings))
	args = append(args, string(guard.Address.Bytes()), guardValue, len(bindings))

	for _, b := range bindings {
		args = append(args, string(b.Address.Bytes()), string(b.Word))
	}

	res, err := s.script.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}

		return nil, fmt.Errorf("redisstore: guarded write: %w", err)
	}

	if res == nil {
		return nil, nil
	}

	observed, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("redisstore: unexpected script reply type %T", res)
	}

	return findex.Word(observed), nil
}
