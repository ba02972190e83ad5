package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Payload is the free-form key/value body carried by events, actions and receipt snapshots.
// It is persisted as a JSON document.
type Payload map[string]any

// Value implements driver.Valuer.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *Payload) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = Payload{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("payload: unsupported scan type %T", src)
	}
	if len(raw) == 0 {
		*p = Payload{}
		return nil
	}
	out := Payload{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	*p = out
	return nil
}

// String returns the value under key when it is a string.
func (p Payload) String(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// Clone returns a shallow copy so snapshots don't alias the source map.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
