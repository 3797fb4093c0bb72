// CLAUDE:SUMMARY Defines the captured authentication State, its validation and cloning.
// Package snapshot defines the client-side authentication state captured
// from an interactive browser session and replayed into a headless one.
// These types are the contract between capture, persistence and injection:
// a State is produced once, never mutated, and either complete or absent.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrPartial is returned by Validate when one of the storage domains was
// never captured. Partial states are neither persisted nor replayed.
var ErrPartial = errors.New("snapshot: partial state")

// Database mirrors one IndexedDB database: object store name → records in
// store order. Records are opaque JSON values.
type Database map[string][]json.RawMessage

// Cookie is a browser cookie as read from the capture context.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // epoch seconds, 0 = session cookie
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

// State is one browser session's client state at a point in time.
type State struct {
	ID             string              `json:"id"` // UUIDv7
	Origin         string              `json:"origin"`
	CapturedAt     int64               `json:"captured_at"` // epoch milliseconds
	LocalStorage   map[string]string   `json:"local_storage"`
	SessionStorage map[string]string   `json:"session_storage"`
	Databases      map[string]Database `json:"databases"` // database name → stores
	Cookies        []Cookie            `json:"cookies"`
}

// New returns an empty, complete State for origin.
func New(origin string) *State {
	return &State{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Origin:         origin,
		CapturedAt:     time.Now().UnixMilli(),
		LocalStorage:   map[string]string{},
		SessionStorage: map[string]string{},
		Databases:      map[string]Database{},
		Cookies:        []Cookie{},
	}
}

// Validate reports whether every storage domain is present. Empty domains
// are valid; nil ones mean the capture never happened.
func (s *State) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil state", ErrPartial)
	}
	switch {
	case s.LocalStorage == nil:
		return fmt.Errorf("%w: local_storage missing", ErrPartial)
	case s.SessionStorage == nil:
		return fmt.Errorf("%w: session_storage missing", ErrPartial)
	case s.Databases == nil:
		return fmt.Errorf("%w: databases missing", ErrPartial)
	case s.Cookies == nil:
		return fmt.Errorf("%w: cookies missing", ErrPartial)
	}
	for name, db := range s.Databases {
		if db == nil {
			return fmt.Errorf("%w: database %q missing", ErrPartial, name)
		}
	}
	return nil
}

// Clone returns a deep copy. Records are copied byte for byte.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.LocalStorage = cloneMap(s.LocalStorage)
	c.SessionStorage = cloneMap(s.SessionStorage)
	if s.Databases != nil {
		c.Databases = make(map[string]Database, len(s.Databases))
		for name, db := range s.Databases {
			c.Databases[name] = db.Clone()
		}
	}
	if s.Cookies != nil {
		c.Cookies = append([]Cookie{}, s.Cookies...)
	}
	return &c
}

// Clone returns a deep copy of the database.
func (d Database) Clone() Database {
	if d == nil {
		return nil
	}
	out := make(Database, len(d))
	for store, recs := range d {
		cp := make([]json.RawMessage, len(recs))
		for i, r := range recs {
			cp[i] = append(json.RawMessage(nil), r...)
		}
		out[store] = cp
	}
	return out
}

// Records returns the total number of records across all databases.
func (s *State) Records() int {
	n := 0
	for _, db := range s.Databases {
		for _, recs := range db {
			n += len(recs)
		}
	}
	return n
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
