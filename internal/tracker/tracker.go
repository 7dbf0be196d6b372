// Package tracker runs one fetch-then-append cycle for a single satellite.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/star/tlearchive/internal/archive"
	"github.com/star/tlearchive/internal/metrics"
	"github.com/star/tlearchive/internal/orbit"
	"github.com/star/tlearchive/internal/tle"
)

// Outcome is the result of a single run.
type Outcome string

const (
	// OutcomeAppended means a record with a new epoch was archived.
	OutcomeAppended Outcome = "appended"
	// OutcomeDuplicate means the fetched epoch matched the last archived one.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeAbsent means nothing was fetched: request failure or target missing.
	OutcomeAbsent Outcome = "absent"
	// OutcomeFailed means the archive could not be read or written.
	OutcomeFailed Outcome = "failed"
)

// Fetcher returns the target's current element record.
type Fetcher interface {
	Fetch(ctx context.Context) (tle.Record, error)
}

// Tracker ties a Fetcher to an archive Store.
type Tracker struct {
	fetcher     Fetcher
	store       *archive.Store
	logger      *slog.Logger
	metricsFile string
}

// New creates a Tracker. metricsFile may be empty.
func New(fetcher Fetcher, store *archive.Store, logger *slog.Logger, metricsFile string) *Tracker {
	return &Tracker{
		fetcher:     fetcher,
		store:       store,
		logger:      logger.With("component", "tracker"),
		metricsFile: metricsFile,
	}
}

// Run fetches once and appends the record if its epoch is new. Fetch
// failures are reported as OutcomeAbsent with a nil error; only archive
// I/O errors are returned.
func (t *Tracker) Run(ctx context.Context) (Outcome, error) {
	logger := t.logger.With("run_id", uuid.NewString())

	outcome, err := t.run(ctx, logger)
	metrics.IncRuns(string(outcome))
	if t.metricsFile != "" {
		if werr := metrics.WriteTextfile(t.metricsFile); werr != nil {
			logger.Warn("failed to write metrics textfile", "path", t.metricsFile, "error", werr)
		}
	}
	return outcome, err
}

func (t *Tracker) run(ctx context.Context, logger *slog.Logger) (Outcome, error) {
	start := time.Now()
	rec, err := t.fetcher.Fetch(ctx)
	metrics.ObserveFetchDuration(time.Since(start))
	if err != nil {
		if errors.Is(err, tle.ErrNotFound) {
			logger.Info("no record for target in source", "error", err)
		} else {
			logger.Warn("TLE was not fetched", "error", err)
		}
		return OutcomeAbsent, nil
	}

	res, err := t.store.Append(rec)
	if err != nil {
		logger.Error("archive update failed", "path", t.store.Path(), "error", err)
		return OutcomeFailed, err
	}
	metrics.SetArchiveRecords(res.Size)

	if epochStr, ok := rec.Epoch(); ok {
		if epoch, err := orbit.ParseEpoch(epochStr); err == nil {
			metrics.SetLastEpoch(epoch)
		}
	}

	if !res.Appended {
		return OutcomeDuplicate, nil
	}

	t.checkElements(rec, logger)
	return OutcomeAppended, nil
}

// checkElements propagates a newly archived record to its epoch. Failures
// are logged only; the record stays archived.
func (t *Tracker) checkElements(rec tle.Record, logger *slog.Logger) {
	sp, err := orbit.CheckRecord(rec)
	if err != nil {
		logger.Warn("archived elements failed SGP4 check", "error", err)
		return
	}
	logger.Info("subpoint at epoch",
		"epoch", sp.Time.Format(time.RFC3339),
		"lat_deg", sp.LatitudeDeg,
		"lon_deg", sp.LongitudeDeg,
		"alt_km", sp.AltitudeKm,
	)
}
