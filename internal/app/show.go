package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/test7679/gold-rate-alert/internal/rates"
	"github.com/test7679/gold-rate-alert/internal/storage"
)

// Show prints the persisted rate, or the recent history when the backend keeps one.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var records []storage.Record
	if history, ok := store.(storage.HistoryStore); ok {
		records, err = history.ListRecent(ctx, opts.Limit)
		if err != nil {
			return err
		}
	} else {
		rec, err := store.Load(ctx)
		if err != nil {
			return err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}

	if len(records) == 0 {
		fmt.Fprintln(a.out, "no rate notified yet")
		return nil
	}
	if len(records) == 1 && records[0].Raw != "" {
		fmt.Fprintf(a.out, "legacy state: %s\n", records[0].Raw)
		return nil
	}

	renderRecords(a.out, records)
	return nil
}

func renderRecords(w io.Writer, records []storage.Record) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)

	header := table.Row{"Notified (UTC)"}
	for _, key := range rates.DisplayOrder {
		header = append(header, string(key))
	}
	header = append(header, "Strategy")
	t.AppendHeader(header)

	for _, rec := range records {
		notified := "-"
		if !rec.NotifiedAt.IsZero() {
			notified = rec.NotifiedAt.UTC().Format(time.RFC3339)
		}
		row := table.Row{notified}
		for _, key := range rates.DisplayOrder {
			v, ok := rec.Rates.Get(key)
			if !ok {
				v = "-"
			}
			row = append(row, v)
		}
		row = append(row, rec.Strategy)
		t.AppendRow(row)
	}

	t.Render()
}
