package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/star/tlearchive/internal/archive"
	"github.com/star/tlearchive/internal/orbit"
	"github.com/star/tlearchive/internal/tle"
)

// diag prints every archived epoch and its SGP4 subpoint.
// Usage: diag [archive.json]
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	path := "iss_tle.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	records, err := archive.NewStore(path, logger).Load()
	if err != nil {
		fmt.Println("ERROR reading archive:", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d records from %s\n", len(records), path)

	var failed int
	for i, rec := range records {
		epoch, _ := rec.Epoch()
		sp, err := orbit.CheckRecord(rec)
		if err != nil {
			fmt.Printf("  %3d epoch=%s fetched=%v: ERROR %v\n", i, epoch, rec[tle.FieldDateFetched], err)
			failed++
			continue
		}
		fmt.Printf("  %3d epoch=%s lat=%.2f° lon=%.2f° alt=%.1fkm\n",
			i, sp.Time.Format(time.RFC3339), sp.LatitudeDeg, sp.LongitudeDeg, sp.AltitudeKm)
	}

	if len(records) > 1 {
		first, err1 := epochOf(records[0])
		last, err2 := epochOf(records[len(records)-1])
		if err1 == nil && err2 == nil {
			fmt.Printf("\nEpoch span: %v\n", last.Sub(first).Round(time.Minute))
		}
	}
	fmt.Printf("Records failing SGP4 check: %d\n", failed)
}

func epochOf(rec tle.Record) (time.Time, error) {
	s, _ := rec.Epoch()
	return orbit.ParseEpoch(s)
}
