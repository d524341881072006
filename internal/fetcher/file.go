package fetcher

import (
	"context"
	"os"
)

// File serves a previously saved HTML dump as if it had just been rendered.
type File struct {
	Path string
	// URL is reported as the page source; defaults to Path.
	URL string
}

// Fetch reads the dump from disk.
func (f *File) Fetch(ctx context.Context) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: f.source(), Stage: StageRead, Err: err}
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, &FetchError{URL: f.source(), Stage: StageRead, Err: err}
	}
	return NewPage(f.source(), string(data), "", nil), nil
}

func (f *File) source() string {
	if f.URL != "" {
		return f.URL
	}
	return f.Path
}

var _ PageFetcher = (*File)(nil)
