package tle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultSourceURL lists the GP elements of all active satellites as JSON.
	DefaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=json"

	// DefaultTimeout bounds the single request made per fetch.
	DefaultTimeout = 60 * time.Second

	// maxBodyBytes caps the response size (50 MB).
	maxBodyBytes = 50 << 20

	// fetchedLayout is ISO-8601 UTC with a literal Z suffix.
	fetchedLayout = "2006-01-02T15:04:05.000000Z"
)

var (
	// ErrNotFound is returned when the response holds no record for the target ID.
	ErrNotFound = errors.New("target record not found")

	// ErrUnexpectedStatus is returned for any non-200 response.
	ErrUnexpectedStatus = errors.New("unexpected status code")
)

// Fetcher retrieves the element record of a single satellite from a remote source.
type Fetcher struct {
	sourceURL  string
	targetID   int64
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client. The client is used as is;
// WithTimeout does not modify it.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithTimeout sets the request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithClock overrides the clock used for date_fetched.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// NewFetcher creates a Fetcher for the given source URL and NORAD catalog ID.
func NewFetcher(sourceURL string, targetID int64, logger *slog.Logger, opts ...Option) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	f := &Fetcher{
		sourceURL: sourceURL,
		targetID:  targetID,
		timeout:   DefaultTimeout,
		logger:    logger.With("component", "fetcher"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: f.timeout}
	}
	return f
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// TargetID returns the NORAD catalog ID this fetcher looks for.
func (f *Fetcher) TargetID() int64 {
	return f.targetID
}

// Fetch performs one HTTP GET and returns the target's record stamped with
// date_fetched. It returns ErrNotFound when the source does not list the target.
// Failures are returned, not logged.
func (f *Fetcher) Fetch(ctx context.Context) (Record, error) {
	body, err := f.get(ctx)
	if err != nil {
		return nil, err
	}

	var records []Record
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding response body: %w", err)
	}

	rec, ok := Find(records, f.targetID)
	if !ok {
		return nil, fmt.Errorf("norad id %d not among %d records: %w", f.targetID, len(records), ErrNotFound)
	}

	rec = rec.Clone()
	rec[FieldDateFetched] = FormatFetched(f.now())

	f.logger.Info("TLE has been fetched", "norad_id", f.targetID, "epoch", rec[FieldEpoch])
	return rec, nil
}

func (f *Fetcher) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w %d from %s", ErrUnexpectedStatus, resp.StatusCode, f.sourceURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds %d byte limit", maxBodyBytes)
	}

	return body, nil
}

// Find returns the first record whose NORAD_CAT_ID equals id.
func Find(records []Record, id int64) (Record, bool) {
	for _, r := range records {
		if n, ok := r.NORADID(); ok && n == id {
			return r, true
		}
	}
	return nil, false
}

// FormatFetched renders t in UTC as ISO-8601 with a Z suffix.
func FormatFetched(t time.Time) string {
	return t.UTC().Format(fetchedLayout)
}
