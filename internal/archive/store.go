// Package archive persists fetched element records as a single JSON array on disk.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/star/tlearchive/internal/tle"
)

const indent = "    "

// Store reads and rewrites one archive file. Appends through the same Store
// are serialized, and each rewrite replaces the file atomically, so readers
// never observe a partially written archive.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// Result describes what Append did.
type Result struct {
	Appended bool
	Size     int // records in the archive after the write
}

// NewStore creates a Store backed by the file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With("component", "archive"),
	}
}

// Path returns the archive file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the archive. A missing file or one that does not hold a JSON
// array of objects yields an empty archive. Only read failures such as
// permission errors are returned.
func (s *Store) Load() (tle.Archive, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return tle.Archive{}, nil
		}
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	var records tle.Archive
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	err = dec.Decode(&records)
	if err == nil {
		if _, tokErr := dec.Token(); tokErr != io.EOF {
			err = errors.New("trailing data after JSON array")
		}
	}
	if err != nil {
		s.logger.Warn("archive is not a JSON array, starting over", "path", s.path, "error", err)
		return tle.Archive{}, nil
	}
	if records == nil {
		records = tle.Archive{}
	}
	return records, nil
}

// Latest returns the last archived record.
func (s *Store) Latest() (tle.Record, bool, error) {
	records, err := s.Load()
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[len(records)-1], true, nil
}

// Append adds rec to the end of the archive unless the last stored record has
// the same EPOCH. The file is rewritten in both cases. A skipped record still
// re-encodes the archive, so an archive written by another tool may come back
// with its object keys sorted.
func (s *Store) Append(rec tle.Record) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.Load()
	if err != nil {
		return Result{}, err
	}

	res := Result{}
	if n := len(records); n > 0 && records[n-1].SameEpoch(rec) {
		s.logger.Info("TLE is not new", "epoch", rec[tle.FieldEpoch], "size", n)
	} else {
		records = append(records, rec)
		res.Appended = true
		s.logger.Info("TLE is new and saved", "epoch", rec[tle.FieldEpoch], "size", len(records))
	}
	res.Size = len(records)

	if err := s.write(records); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Store) write(records tle.Archive) error {
	data, err := Encode(records)
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}

// writeAtomic writes data to a temp file beside path and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing archive: %w", err)
	}
	return nil
}

// Encode renders records as a 4-space indented JSON array.
func Encode(records tle.Archive) ([]byte, error) {
	if records == nil {
		records = tle.Archive{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encoding archive: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
