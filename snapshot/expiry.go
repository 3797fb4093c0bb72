// CLAUDE:SUMMARY Scans captured IndexedDB records for token expiration timestamps.
package snapshot

import (
	"encoding/json"
	"time"
)

// expiryField is the key auth SDKs use for access token expiry (epoch ms),
// e.g. stsTokenManager.expirationTime in Firebase user records.
const expiryField = "expirationTime"

// TokenExpiry returns the earliest token expiration found in any database
// record. ok is false when no record carries one.
func (s *State) TokenExpiry() (t time.Time, ok bool) {
	var earliest float64
	for _, db := range s.Databases {
		for _, recs := range db {
			for _, raw := range recs {
				var v any
				if err := json.Unmarshal(raw, &v); err != nil {
					continue
				}
				if ms, found := findExpiry(v); found && (earliest == 0 || ms < earliest) {
					earliest = ms
				}
			}
		}
	}
	if earliest == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(earliest)), true
}

func findExpiry(v any) (float64, bool) {
	switch x := v.(type) {
	case map[string]any:
		if n, ok := x[expiryField].(float64); ok && n > 0 {
			return n, true
		}
		for _, child := range x {
			if n, ok := findExpiry(child); ok {
				return n, true
			}
		}
	case []any:
		for _, child := range x {
			if n, ok := findExpiry(child); ok {
				return n, true
			}
		}
	}
	return 0, false
}
