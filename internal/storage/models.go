package storage

import (
	"time"

	"github.com/test7679/gold-rate-alert/internal/rates"
)

// Record is the last notified snapshot together with its provenance.
type Record struct {
	RunID      string         `json:"run_id,omitempty"`
	Rates      rates.Snapshot `json:"rates"`
	Strategy   string         `json:"strategy,omitempty"`
	SourceURL  string         `json:"source_url,omitempty"`
	NotifiedAt time.Time      `json:"notified_at"`
	// Raw holds a legacy single-string state; it never equals a mapping.
	Raw string `json:"-"`
}
