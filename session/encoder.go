package session

import (
	"encoding/json"
	"fmt"
)

// CurrentSchemaVersion is written into every stored record.
const CurrentSchemaVersion = 1

type storedRecord struct {
	Version int `json:"v"`
	Record
}

func encodeRecord(r *Record) ([]byte, error) {
	data, err := json.Marshal(storedRecord{Version: CurrentSchemaVersion, Record: *r})
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*Record, error) {
	var sr storedRecord
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if sr.Version != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported session schema version %d", ErrCorruptRecord, sr.Version)
	}
	if sr.ID == "" || sr.PrincipalID == "" {
		return nil, fmt.Errorf("%w: missing identifiers", ErrCorruptRecord)
	}
	rec := sr.Record
	return &rec, nil
}
