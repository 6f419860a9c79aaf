package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure all JSONB types implement both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
// Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*AlertPayload)(nil)
	_ driver.Valuer = AlertPayload(nil)
	_ sql.Scanner   = (*TriggerSet)(nil)
	_ driver.Valuer = TriggerSet(nil)
	_ sql.Scanner   = (*ChannelMap)(nil)
	_ driver.Valuer = ChannelMap(nil)
	_ sql.Scanner   = (*QuietHours)(nil)
	_ driver.Valuer = QuietHours{}
)

// scanJSONB is a generic helper that scans a JSONB database value into a Go pointer.
// It handles nil values, []byte, and string representations from different database drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// valueJSONB is a generic helper that converts a Go value to a JSONB-compatible driver.Value.
// Returns nil for nil interface values; otherwise marshals to JSON bytes.
func valueJSONB(v interface{}) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (p *AlertPayload) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	return scanJSONB(p, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (p AlertPayload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (t *TriggerSet) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	return scanJSONB(t, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (t TriggerSet) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (m *ChannelMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	return scanJSONB(m, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
// Note: this writes the full config including credentials. Redaction applies
// only to log and API serialization, not database storage.
func (m ChannelMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (q *QuietHours) Scan(value interface{}) error {
	return scanJSONB(q, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (q QuietHours) Value() (driver.Value, error) {
	return valueJSONB(q)
}
