// CLAUDE:SUMMARY Serializes and restores Web Storage and IndexedDB contents with validation before write.
// Package storage serialises and restores the three browser storage domains
// (localStorage, sessionStorage, IndexedDB) through narrow capabilities, so
// the codec runs the same against a live tab and an in-memory fake.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hazyhaar/authwatch/snapshot"
)

// ErrMalformed is returned when a fragment is not the expected JSON shape.
// Nothing is written when it is returned.
var ErrMalformed = errors.New("storage: malformed fragment")

// Area names a Web Storage key-value store.
type Area string

const (
	Local   Area = "localStorage"
	Session Area = "sessionStorage"
)

// KVStore is whole-store access to a Web Storage area.
type KVStore interface {
	// DumpArea returns the whole area as a JSON object string.
	DumpArea(ctx context.Context, area Area) (string, error)
	// ReplaceArea clears the area then writes every pair.
	ReplaceArea(ctx context.Context, area Area, data map[string]string) error
}

// ObjectDB is the IndexedDB contract consumed from the browser. Each call
// resolves exactly one outstanding operation; callers never overlap them.
type ObjectDB interface {
	StoreNames(ctx context.Context, db string) ([]string, error)
	GetAll(ctx context.Context, db, store string) ([]json.RawMessage, error)
	// ReplaceStores clears then puts records per store inside a single
	// read-write transaction. Every store named must exist.
	ReplaceStores(ctx context.Context, db string, stores map[string][]json.RawMessage) error
}

// Result describes a database restore.
type Result struct {
	Written []string // stores cleared and rewritten
	Skipped []string // stores absent at the destination
}

// Codec converts between live storage and snapshot fragments.
type Codec struct {
	logger *slog.Logger
}

// NewCodec creates a Codec. A nil logger uses slog.Default.
func NewCodec(logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{logger: logger}
}

// SerializeKV reads a whole Web Storage area.
func (c *Codec) SerializeKV(ctx context.Context, kv KVStore, area Area) (map[string]string, error) {
	raw, err := kv.DumpArea(ctx, area)
	if err != nil {
		return nil, fmt.Errorf("storage: dump %s: %w", area, err)
	}
	m, err := DecodeKV([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("storage: dump %s: %w", area, err)
	}
	return m, nil
}

// DeserializeKV validates fragment then replaces the area with it.
func (c *Codec) DeserializeKV(ctx context.Context, kv KVStore, area Area, fragment []byte) error {
	m, err := DecodeKV(fragment)
	if err != nil {
		return err
	}
	return c.RestoreKV(ctx, kv, area, m)
}

// RestoreKV replaces the area with m. A nil map is malformed; an empty one
// clears the area.
func (c *Codec) RestoreKV(ctx context.Context, kv KVStore, area Area, m map[string]string) error {
	if m == nil {
		return fmt.Errorf("%w: %s is null", ErrMalformed, area)
	}
	if err := kv.ReplaceArea(ctx, area, m); err != nil {
		return fmt.Errorf("storage: replace %s: %w", area, err)
	}
	return nil
}

// SerializeDB reads every object store of db. A database without stores
// yields an empty map and an empty store an empty slice, never nil.
func (c *Codec) SerializeDB(ctx context.Context, odb ObjectDB, db string) (snapshot.Database, error) {
	names, err := odb.StoreNames(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("storage: list stores of %s: %w", db, err)
	}
	out := make(snapshot.Database, len(names))
	for _, name := range names {
		recs, err := odb.GetAll(ctx, db, name)
		if err != nil {
			return nil, fmt.Errorf("storage: read %s/%s: %w", db, name, err)
		}
		if recs == nil {
			recs = []json.RawMessage{}
		}
		out[name] = recs
	}
	return out, nil
}

// DeserializeDB validates fragment as {store: [records...]} then restores it.
func (c *Codec) DeserializeDB(ctx context.Context, odb ObjectDB, db string, fragment []byte) (Result, error) {
	data, err := DecodeDB(fragment)
	if err != nil {
		return Result{}, err
	}
	return c.RestoreDB(ctx, odb, db, data)
}

// RestoreDB writes data into the stores that exist at the destination.
// Stores missing there are skipped with a warning: the destination schema
// may differ from run to run.
func (c *Codec) RestoreDB(ctx context.Context, odb ObjectDB, db string, data snapshot.Database) (Result, error) {
	var res Result
	if data == nil {
		return res, fmt.Errorf("%w: database %s is null", ErrMalformed, db)
	}
	if len(data) == 0 {
		return res, nil
	}

	existing, err := odb.StoreNames(ctx, db)
	if err != nil {
		return res, fmt.Errorf("storage: list stores of %s: %w", db, err)
	}
	present := make(map[string]bool, len(existing))
	for _, n := range existing {
		present[n] = true
	}

	write := make(map[string][]json.RawMessage, len(data))
	for _, store := range sortedStores(data) {
		if !present[store] {
			c.logger.Warn("storage: object store missing at destination, skipped",
				"db", db, "store", store)
			res.Skipped = append(res.Skipped, store)
			continue
		}
		write[store] = data[store]
		res.Written = append(res.Written, store)
	}
	if len(write) == 0 {
		return res, nil
	}

	if err := odb.ReplaceStores(ctx, db, write); err != nil {
		return Result{Skipped: res.Skipped}, fmt.Errorf("storage: write %s: %w", db, err)
	}
	return res, nil
}

// DecodeKV parses a JSON object of string values.
func DecodeKV(fragment []byte) (map[string]string, error) {
	if !isObject(fragment) {
		return nil, fmt.Errorf("%w: expected JSON object", ErrMalformed)
	}
	var m map[string]string
	if err := json.Unmarshal(fragment, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// DecodeDB parses a JSON object mapping store names to record arrays.
func DecodeDB(fragment []byte) (snapshot.Database, error) {
	if !isObject(fragment) {
		return nil, fmt.Errorf("%w: expected JSON object", ErrMalformed)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(fragment, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	out := make(snapshot.Database, len(raw))
	for store, v := range raw {
		if t := bytes.TrimSpace(v); len(t) == 0 || t[0] != '[' {
			return nil, fmt.Errorf("%w: store %q is not an array", ErrMalformed, store)
		}
		var recs []json.RawMessage
		if err := json.Unmarshal(v, &recs); err != nil {
			return nil, fmt.Errorf("%w: store %q: %v", ErrMalformed, store, err)
		}
		out[store] = recs
	}
	return out, nil
}

func isObject(b []byte) bool {
	t := bytes.TrimSpace(b)
	return len(t) > 0 && t[0] == '{'
}

func sortedStores(d snapshot.Database) []string {
	names := make([]string, 0, len(d))
	for n := range d {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
