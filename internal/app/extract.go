package app

import (
	"context"
	"fmt"

	"github.com/test7679/gold-rate-alert/internal/storage"
)

// Extract fetches the page (or reads a dump) and prints what the extractor recognises.
// Nothing is sent and nothing is persisted.
func (a *App) Extract(ctx context.Context, opts ExtractOptions) error {
	page, err := a.newFetcher(opts.File).Fetch(ctx)
	if err != nil {
		return err
	}

	res, err := a.newExtractor().Extract(page)
	if err != nil {
		return fmt.Errorf("extract rates from %s: %w", page.URL, err)
	}

	a.Logger.Info().
		Str("strategy", res.Strategy).
		Str("source", page.URL).
		Msg("dry-run extraction")

	renderRecords(a.out, []storage.Record{{Rates: res.Snapshot, Strategy: res.Strategy, SourceURL: page.URL}})
	return nil
}
