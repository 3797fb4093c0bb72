// CLAUDE:SUMMARY In-memory KVStore and ObjectDB used to exercise the codec without a browser.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory implements KVStore and ObjectDB in process. Object stores must be
// created with CreateStore before they can be written, as in IndexedDB.
type Memory struct {
	mu     sync.Mutex
	areas  map[Area]map[string]string
	dbs    map[string]map[string][]json.RawMessage
	writes int // ReplaceStores transactions committed
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		areas: map[Area]map[string]string{Local: {}, Session: {}},
		dbs:   map[string]map[string][]json.RawMessage{},
	}
}

// CreateStore declares an object store in db.
func (m *Memory) CreateStore(db, store string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dbs[db] == nil {
		m.dbs[db] = map[string][]json.RawMessage{}
	}
	if _, ok := m.dbs[db][store]; !ok {
		m.dbs[db][store] = []json.RawMessage{}
	}
}

// Put appends a record to an existing store.
func (m *Memory) Put(db, store string, rec json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.dbs[db][store]
	if !ok {
		return fmt.Errorf("memory: no store %s/%s", db, store)
	}
	m.dbs[db][store] = append(s, rec)
	return nil
}

// Area returns a copy of a Web Storage area.
func (m *Memory) Area(area Area) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.areas[area]))
	for k, v := range m.areas[area] {
		out[k] = v
	}
	return out
}

// SetItem writes one pair, like Storage.setItem.
func (m *Memory) SetItem(area Area, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.areas[area] == nil {
		m.areas[area] = map[string]string{}
	}
	m.areas[area][key] = value
}

// Records returns a copy of a store's records.
func (m *Memory) Records(db, store string) []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]json.RawMessage(nil), m.dbs[db][store]...)
}

// Transactions returns how many ReplaceStores calls committed.
func (m *Memory) Transactions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) DumpArea(_ context.Context, area Area) (string, error) {
	data, err := json.Marshal(m.Area(area))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *Memory) ReplaceArea(_ context.Context, area Area, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := make(map[string]string, len(data))
	for k, v := range data {
		fresh[k] = v
	}
	m.areas[area] = fresh
	return nil
}

func (m *Memory) StoreNames(_ context.Context, db string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.dbs[db]))
	for n := range m.dbs[db] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) GetAll(_ context.Context, db, store string) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs, ok := m.dbs[db][store]
	if !ok {
		return nil, fmt.Errorf("memory: no store %s/%s", db, store)
	}
	return append([]json.RawMessage{}, recs...), nil
}

func (m *Memory) ReplaceStores(_ context.Context, db string, stores map[string][]json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Validate first: a failed transaction leaves nothing written.
	for s := range stores {
		if _, ok := m.dbs[db][s]; !ok {
			return fmt.Errorf("memory: no store %s/%s", db, s)
		}
	}
	for s, recs := range stores {
		m.dbs[db][s] = append([]json.RawMessage{}, recs...)
	}
	m.writes++
	return nil
}
