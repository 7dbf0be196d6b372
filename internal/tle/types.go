package tle

import (
	"encoding/json"
	"maps"
)

// Field names used from CelesTrak GP (OMM) JSON records.
const (
	FieldNORADID     = "NORAD_CAT_ID"
	FieldEpoch       = "EPOCH"
	FieldDateFetched = "date_fetched"
)

// Record is one satellite's orbital elements at one epoch, exactly as
// returned by the source. Numbers are kept as json.Number so that values
// are written back to the archive unchanged.
type Record map[string]any

// NORADID returns the record's catalog number, if it holds an integer.
func (r Record) NORADID() (int64, bool) {
	switch v := r[FieldNORADID].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

// Epoch returns the record's EPOCH string.
func (r Record) Epoch() (string, bool) {
	s, ok := r[FieldEpoch].(string)
	return s, ok
}

// SameEpoch reports whether both records carry the same EPOCH.
// A record without an epoch never matches.
func (r Record) SameEpoch(other Record) bool {
	a, ok := r.Epoch()
	if !ok {
		return false
	}
	b, ok := other.Epoch()
	return ok && a == b
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	return maps.Clone(r)
}

// Archive is the ordered list of fetched records, oldest first.
type Archive []Record
