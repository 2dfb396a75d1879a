package dbtypes

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONDocument stores raw JSON in jsonb (Postgres) or TEXT (SQLite) columns.
// Values are written as strings so the simple query protocol does not send
// them as bytea.
type JSONDocument []byte

func (d *JSONDocument) Scan(src any) error {
	if src == nil {
		*d = nil
		return nil
	}
	switch v := src.(type) {
	case string:
		*d = append((*d)[:0], v...)
	case []byte:
		*d = append((*d)[:0], v...)
	default:
		return fmt.Errorf("JSONDocument: unsupported Scan type %T", src)
	}
	return nil
}

func (d JSONDocument) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	if !json.Valid(d) {
		return nil, fmt.Errorf("JSONDocument: invalid json")
	}
	return string(d), nil
}

func (d JSONDocument) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(d)) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

func (d *JSONDocument) UnmarshalJSON(data []byte) error {
	if d == nil {
		return fmt.Errorf("JSONDocument: UnmarshalJSON on nil pointer")
	}
	*d = append((*d)[:0], data...)
	return nil
}

// Raw returns the document as a json.RawMessage.
func (d JSONDocument) Raw() json.RawMessage {
	return json.RawMessage(d)
}
