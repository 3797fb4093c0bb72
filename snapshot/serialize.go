// CLAUDE:SUMMARY JSON encoding of snapshots, validated in both directions.
package snapshot

import (
	"encoding/json"
	"fmt"
)

// Marshal serialises a complete State to JSON.
func Marshal(s *State) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// Unmarshal deserialises a State and rejects partial ones.
func Unmarshal(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
