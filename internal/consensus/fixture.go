package consensus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/safe-route-service/internal/domain"
)

// FixtureReport is one entry of a report fixture file: a submission plus the
// time it was made.
type FixtureReport struct {
	CreatedAt time.Time `json:"created_at"`
	domain.ReportSubmission
}

// ReplayResult counts the outcomes of a replay.
type ReplayResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
}

// ReadFixture decodes a JSON array of FixtureReport.
func ReadFixture(r io.Reader) ([]FixtureReport, error) {
	var entries []FixtureReport
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return entries, nil
}

// Replay feeds entries into store in chronological order, moving clock to each
// entry's timestamp before submitting it. The store must have been built with
// the same clock.
func Replay(entries []FixtureReport, clock *clockwork.FakeClock, store *Store) ReplayResult {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b FixtureReport) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	var res ReplayResult
	for _, e := range sorted {
		if d := e.CreatedAt.Sub(clock.Now()); d > 0 {
			clock.Advance(d)
		}
		_, err := store.Add(e.ReportSubmission)
		switch {
		case err == nil:
			res.Accepted++
		case errors.Is(err, domain.ErrDuplicateSubmission):
			res.Duplicates++
		default:
			res.Invalid++
		}
	}
	return res
}
