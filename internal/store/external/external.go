// Package external implements entry.ExternalStore, the durable
// read-through/write-through tier a cache entry falls back to on a
// cold Read and pushes to on every accepted write. Two backends are
// provided behind the same interface, selected by gridconfig's storage
// profile: Postgres (via pgx) for the standard profile, and an
// embedded SQLite file (via modernc.org/sqlite) for the lite profile
// that needs no external database.
package external

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vitaliisemenov/gridcache/internal/version"
)

// Common errors, mirroring the teacher's database-package sentinel
// style.
var (
	ErrNotConnected     = errors.New("external store: not connected")
	ErrConnectionFailed = errors.New("external store: failed to connect")
	ErrRowNotFound      = errors.New("external store: row not found")
)

// record is the JSON envelope persisted alongside a row's value,
// carrying the version tuple so a Load can reconstruct a comparable
// version.Version for InitialValue/read-through reinstall checks.
type record struct {
	Value   json.RawMessage `json:"value"`
	Version version.Version `json:"version"`
}

func encodeRecord(val any, ver version.Version) ([]byte, error) {
	payload, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("external store: marshal value: %w", err)
	}
	return json.Marshal(record{Value: payload, Version: ver})
}

func decodeRecord(data []byte) (any, version.Version, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, version.Version{}, fmt.Errorf("external store: unmarshal record: %w", err)
	}
	var val any
	if len(rec.Value) > 0 {
		if err := json.Unmarshal(rec.Value, &val); err != nil {
			return nil, version.Version{}, fmt.Errorf("external store: unmarshal value: %w", err)
		}
	}
	return val, rec.Version, nil
}
