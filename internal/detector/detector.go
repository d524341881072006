package detector

import (
	"github.com/test7679/gold-rate-alert/internal/rates"
	"github.com/test7679/gold-rate-alert/internal/storage"
)

// Outcome classifies a fresh snapshot against the persisted one.
type Outcome string

const (
	FirstRun  Outcome = "first_run"
	Changed   Outcome = "changed"
	Unchanged Outcome = "unchanged"
)

// Decision is the result of Compare.
type Decision struct {
	Outcome Outcome
	// Previous is the persisted mapping, nil on first run or for a legacy raw record.
	Previous *rates.Snapshot
}

// Notify reports whether the snapshot should be announced and persisted.
func (d Decision) Notify() bool { return d.Outcome != Unchanged }

// Compare decides by exact key/value equality; a missing record always notifies.
func Compare(prev *storage.Record, next rates.Snapshot) Decision {
	if prev == nil {
		return Decision{Outcome: FirstRun}
	}

	var previous *rates.Snapshot
	if prev.Raw == "" {
		snap := prev.Rates
		previous = &snap
	}

	if prev.Raw == "" && prev.Rates.Equal(next) {
		return Decision{Outcome: Unchanged, Previous: previous}
	}
	return Decision{Outcome: Changed, Previous: previous}
}
