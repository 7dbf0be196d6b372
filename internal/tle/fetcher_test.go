package tle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const activeGroup = `[
  {"OBJECT_NAME":"CALSPHERE 1","NORAD_CAT_ID":900,"EPOCH":"2024-01-01T03:04:05.123456","MEAN_MOTION":13.7},
  {"OBJECT_NAME":"ISS (ZARYA)","OBJECT_ID":"1998-067A","NORAD_CAT_ID":25544,"EPOCH":"2024-01-01T00:00:00","MEAN_MOTION":15.50000000,"ECCENTRICITY":0.0001000,"BSTAR":0.00010270},
  {"OBJECT_NAME":"DUPLICATE","NORAD_CAT_ID":25544,"EPOCH":"1999-01-01T00:00:00"}
]`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 1, 6, 30, 15, 250000000, time.FixedZone("CET", 3600))
}

// TestFetcherSuccess verifies the first matching record is returned with date_fetched.
func TestFetcherSuccess(t *testing.T) {
	server := serve(t, http.StatusOK, activeGroup)

	fetcher := NewFetcher(server.URL, 25544, testLogger, WithClock(fixedClock))
	rec, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := rec["OBJECT_NAME"]; got != "ISS (ZARYA)" {
		t.Errorf("OBJECT_NAME = %v, want first match", got)
	}
	if epoch, _ := rec.Epoch(); epoch != "2024-01-01T00:00:00" {
		t.Errorf("EPOCH = %q", epoch)
	}
	if got, want := rec[FieldDateFetched], "2024-01-01T05:30:15.250000Z"; got != want {
		t.Errorf("date_fetched = %v, want %v", got, want)
	}
	// Numbers pass through untouched.
	if got := rec["ECCENTRICITY"]; got != json.Number("0.0001000") {
		t.Errorf("ECCENTRICITY = %#v, want json.Number(\"0.0001000\")", got)
	}
}

// TestFetcherNotFound verifies a missing target is reported as ErrNotFound.
func TestFetcherNotFound(t *testing.T) {
	server := serve(t, http.StatusOK, activeGroup)

	fetcher := NewFetcher(server.URL, 99999, testLogger)
	rec, err := fetcher.Fetch(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %v", rec)
	}
}

// TestFetcherEmptyArray verifies an empty response yields ErrNotFound.
func TestFetcherEmptyArray(t *testing.T) {
	server := serve(t, http.StatusOK, `[]`)

	_, err := NewFetcher(server.URL, 25544, testLogger).Fetch(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestFetcherHTTPError verifies error handling for non-200 responses.
func TestFetcherHTTPError(t *testing.T) {
	server := serve(t, http.StatusInternalServerError, "")

	fetcher := NewFetcher(server.URL, 25544, testLogger)
	_, err := fetcher.Fetch(context.Background())
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus for 500 response, got %v", err)
	}
}

// TestFetcherMalformedBody verifies a non-array body is an error, not a panic.
func TestFetcherMalformedBody(t *testing.T) {
	server := serve(t, http.StatusOK, `GP data has not updated since your last successful download`)

	_, err := NewFetcher(server.URL, 25544, testLogger).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected decode error, got nil")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("decode failure should not look like ErrNotFound: %v", err)
	}
}

// TestFetcherBodyLimit verifies that responses exceeding the 50 MB limit
// return an error instead of consuming unbounded memory.
func TestFetcherBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		chunk := strings.Repeat("A", 1024*1024)
		for i := 0; i < 52; i++ {
			if _, err := w.Write([]byte(chunk)); err != nil {
				return // Client closed connection.
			}
		}
	}))
	defer server.Close()

	_, err := NewFetcher(server.URL, 25544, testLogger).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for oversized response, got nil")
	}
	if !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("expected body limit error, got: %v", err)
	}
}

// TestFetcherSingleRequest verifies exactly one GET per Fetch.
func TestFetcherSingleRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	NewFetcher(server.URL, 25544, testLogger).Fetch(context.Background())
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 request, got %d", got)
	}
}

func TestFetcherTimeout(t *testing.T) {
	f := NewFetcher("", 25544, testLogger)
	if f.httpClient.Timeout != DefaultTimeout {
		t.Errorf("default timeout = %v, want %v", f.httpClient.Timeout, DefaultTimeout)
	}

	f = NewFetcher("", 25544, testLogger, WithTimeout(15*time.Second))
	if f.httpClient.Timeout != 15*time.Second {
		t.Errorf("timeout = %v, want 15s", f.httpClient.Timeout)
	}

	shared := &http.Client{Timeout: 5 * time.Second}
	f = NewFetcher("", 25544, testLogger, WithHTTPClient(shared), WithTimeout(time.Second))
	if f.httpClient != shared {
		t.Error("expected the supplied client to be used")
	}
	if shared.Timeout != 5*time.Second {
		t.Errorf("supplied client timeout changed to %v", shared.Timeout)
	}
}

// TestFetcherFailureNotLogged verifies failures are returned for the caller to log.
func TestFetcherFailureNotLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	server := serve(t, http.StatusInternalServerError, "")

	if _, err := NewFetcher(server.URL, 25544, logger).Fetch(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if buf.Len() != 0 {
		t.Errorf("fetcher logged on failure: %s", buf.String())
	}
}

// TestFetcherDoesNotMutateSource verifies date_fetched is added to a copy.
func TestFetcherDoesNotMutateSource(t *testing.T) {
	records := []Record{{FieldNORADID: json.Number("25544"), FieldEpoch: "2024-01-01T00:00:00"}}
	rec, ok := Find(records, 25544)
	if !ok {
		t.Fatal("expected match")
	}
	c := rec.Clone()
	c[FieldDateFetched] = "x"
	if _, ok := records[0][FieldDateFetched]; ok {
		t.Error("clone mutated source record")
	}
}

func TestFind(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
		id      int64
		want    bool
	}{
		{"json number", []Record{{FieldNORADID: json.Number("25544")}}, 25544, true},
		{"float", []Record{{FieldNORADID: float64(25544)}}, 25544, true},
		{"fractional never matches", []Record{{FieldNORADID: json.Number("25544.5")}}, 25544, false},
		{"string never matches", []Record{{FieldNORADID: "25544"}}, 25544, false},
		{"missing id", []Record{{FieldEpoch: "2024-01-01T00:00:00"}}, 25544, false},
		{"other id", []Record{{FieldNORADID: json.Number("900")}}, 25544, false},
		{"empty", nil, 25544, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := Find(tt.records, tt.id)
			if got != tt.want {
				t.Errorf("Find() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestFormatFetched verifies the timestamp always ends in Z and never carries +00:00.
func TestFormatFetched(t *testing.T) {
	zones := []*time.Location{time.UTC, time.FixedZone("EST", -5*3600), time.FixedZone("IST", 5*3600+1800)}
	for _, loc := range zones {
		ts := time.Date(2024, 3, 10, 23, 59, 59, 0, loc)
		got := FormatFetched(ts)
		if !strings.HasSuffix(got, "Z") || strings.Contains(got, "+00:00") {
			t.Errorf("FormatFetched(%v) = %q, want Z suffix", ts, got)
		}
		parsed, err := time.Parse(time.RFC3339Nano, got)
		if err != nil {
			t.Fatalf("FormatFetched(%v) = %q is not ISO-8601: %v", ts, got, err)
		}
		if !parsed.Equal(ts) {
			t.Errorf("round trip = %v, want %v", parsed, ts)
		}
	}
}

func TestSameEpoch(t *testing.T) {
	a := Record{FieldEpoch: "2024-01-01T00:00:00"}
	if !a.SameEpoch(Record{FieldEpoch: "2024-01-01T00:00:00"}) {
		t.Error("equal epochs should match")
	}
	if a.SameEpoch(Record{FieldEpoch: "2024-01-01T01:30:00"}) {
		t.Error("different epochs should not match")
	}
	if a.SameEpoch(Record{}) || (Record{}).SameEpoch(Record{}) {
		t.Error("missing epochs should never match")
	}
}
