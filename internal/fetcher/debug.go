package fetcher

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteDebugArtifacts dumps whatever is non-empty among screenshot, html and
// text into dir, named after at. It returns the written paths.
func WriteDebugArtifacts(dir string, at time.Time, screenshot []byte, html, text string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	stamp := at.UTC().Format("20060102T150405Z")
	files := []struct {
		ext  string
		data []byte
	}{
		{"png", screenshot},
		{"html", []byte(html)},
		{"txt", []byte(text)},
	}

	var written []string
	for _, f := range files {
		if len(f.data) == 0 {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("page-%s.%s", stamp, f.ext))
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
