// CLAUDE:SUMMARY Writes diagnostic artifacts (screenshots, page dumps) to a directory.
package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// ArtifactWriter persists diagnostic files and returns where they went.
type ArtifactWriter interface {
	WriteArtifact(name string, data []byte) (string, error)
}

// DirArtifacts writes artifacts into a directory, overwriting same-named
// files so the latest failure is always the one on disk.
type DirArtifacts struct {
	Dir string
}

func (d DirArtifacts) WriteArtifact(name string, data []byte) (string, error) {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("session: artifact dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("session: write artifact: %w", err)
	}
	return path, nil
}
