// findex-shell is an interactive REPL for exercising a [findex.Engine]
// against a local backend. Styled after the teacher's cmd/sloty REPL:
// pflag for flags, a relaxed-JSON (hujson) config file, and peterh/liner
// for line editing and history.
package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/findexlabs/findex"
	"github.com/findexlabs/findex/internal/fsatomic"
	"github.com/findexlabs/findex/memory/inmemory"
	"github.com/findexlabs/findex/memory/sqlitestore"
)

// config is the on-disk shell configuration, parsed with hujson so the
// config file may carry comments, same as the teacher's .tk.json.
type config struct {
	WordLength int    `json:"word_length,omitempty"`
	SeedFile   string `json:"seed_file,omitempty"`
	SQLitePath string `json:"sqlite_path,omitempty"` //nolint:tagliatelle
}

func defaultConfig() config {
	return config{WordLength: 64, SeedFile: ".findex-shell-seed"}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}

	if err != nil {
		return config{}, fmt.Errorf("read config: %w", err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return config{}, fmt.Errorf("decode config %s: %w", path, err)
	}

	return cfg, nil
}

func loadOrCreateSeed(path string) (*findex.Secret, error) {
	if b, err := fsatomic.ReadSeed(path); err == nil {
		return findex.SecretFromBytes(b), nil
	}

	seed := findex.RandomSecret(findex.SeedLength)

	b := append([]byte(nil), seed.Bytes()...)
	if err := fsatomic.WriteSeed(path, b); err != nil {
		return nil, fmt.Errorf("persist new seed: %w", err)
	}

	return seed, nil
}

func main() {
	var (
		configPath = pflag.StringP("config", "c", ".findex-shell.json", "path to the shell config file")
		backend    = pflag.StringP("backend", "b", "memory", `backend to use: "memory" or "sqlite"`)
	)

	pflag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "findex-shell:", err)
		os.Exit(1)
	}

	seed, err := loadOrCreateSeed(cfg.SeedFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "findex-shell:", err)
		os.Exit(1)
	}
	defer seed.Destroy()

	mem, closeMem, err := openBackend(*backend, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "findex-shell:", err)
		os.Exit(1)
	}
	defer closeMem()

	codec := findex.DummyCodec(cfg.WordLength,
		func(v int) []byte { b := make([]byte, 8); binary.BigEndian.PutUint64(b, uint64(v)); return b },
		func(b []byte) (int, error) {
			if len(b) != 8 {
				return 0, fmt.Errorf("expected 8-byte value, got %d", len(b))
			}

			return int(binary.BigEndian.Uint64(b)), nil
		},
	)

	engine, err := findex.NewEngine(seed, mem, cfg.WordLength, codec)
	if err != nil {
		fmt.Fprintln(os.Stderr, "findex-shell:", err)
		os.Exit(1)
	}

	runREPL(engine)
}

func openBackend(name string, cfg config) (findex.Memory, func(), error) {
	switch name {
	case "memory":
		return inmemory.New(), func() {}, nil
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "findex-shell.sqlite"
		}

		s, err := sqlitestore.Open(context.Background(), path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite backend %s: %w", path, err)
		}

		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want memory or sqlite)", name)
	}
}

const helpText = `
commands:
  insert <keyword> <int> [int...]   insert values under a keyword
  delete <keyword> <int> [int...]   delete values from a keyword
  search <keyword> [keyword...]     search keywords, print their value sets
  help                              show this help
  exit / quit / q                   leave the shell
`

func runREPL(engine *findex.Engine[int]) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	histPath := filepath.Join(os.TempDir(), "findex-shell-history")
	if f, err := os.Open(histPath); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}

	ctx := context.Background()

	for {
		input, err := line.Prompt("findex> ")
		if err != nil {
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		if !dispatch(ctx, engine, input) {
			break
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = line.WriteHistory(f)
		_ = f.Close()
	}
}

func dispatch(ctx context.Context, engine *findex.Engine[int], input string) bool {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit", "q":
		return false
	case "help":
		fmt.Println(helpText)
	case "insert":
		runMutate(ctx, engine, findex.OpInsert, args)
	case "delete":
		runMutate(ctx, engine, findex.OpDelete, args)
	case "search":
		runSearch(ctx, engine, args)
	default:
		fmt.Printf("unknown command %q, type help\n", cmd)
	}

	return true
}

func runMutate(ctx context.Context, engine *findex.Engine[int], op findex.Op, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: insert|delete <keyword> <int> [int...]")

		return
	}

	values := make([]int, 0, len(args)-1)

	for _, a := range args[1:] {
		v, err := strconv.Atoi(a)
		if err != nil {
			fmt.Printf("not an integer: %q\n", a)

			return
		}

		values = append(values, v)
	}

	binding := findex.KeywordBinding[int]{Keyword: []byte(args[0]), Values: findex.NewSet(values...)}

	var err error
	if op == findex.OpInsert {
		err = engine.Insert(ctx, []findex.KeywordBinding[int]{binding})
	} else {
		err = engine.Delete(ctx, []findex.KeywordBinding[int]{binding})
	}

	if err != nil {
		fmt.Println("error:", err)
	}
}

func runSearch(ctx context.Context, engine *findex.Engine[int], keywords []string) {
	if len(keywords) == 0 {
		fmt.Println("usage: search <keyword> [keyword...]")

		return
	}

	kws := make([][]byte, len(keywords))
	for i, k := range keywords {
		kws[i] = []byte(k)
	}

	res, err := engine.Search(ctx, kws)
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	for _, k := range keywords {
		values := make([]int, 0, len(res[k]))
		for v := range res[k] {
			values = append(values, v)
		}

		fmt.Printf("%s: %v\n", k, values)
	}
}
