package fetcher

import (
	"context"
	"fmt"
)

// PageFetcher obtains a rendered snapshot of the rate page.
type PageFetcher interface {
	Fetch(ctx context.Context) (*Page, error)
}

// FetchError reports a page that could not be rendered or never showed rate content.
type FetchError struct {
	URL   string
	Stage string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

const (
	StageNavigate = "navigate"
	StageWait     = "wait"
	StageCapture  = "capture"
	StageRead     = "read"
)
