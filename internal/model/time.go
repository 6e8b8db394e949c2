package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Time accepts both RFC 3339 timestamps and the zone-less ISO 8601 form the
// backend emits for naive datetimes, which are read as UTC.
type Time struct {
	time.Time
}

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func NewTime(t time.Time) Time {
	return Time{Time: t.UTC()}
}

func ParseTime(s string) (Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTime(t), nil
		}
	}
	return Time{}, fmt.Errorf("unsupported timestamp %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		*t = Time{}
		return nil
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Later returns whichever of a and b is later.
func Later(a, b Time) Time {
	if b.After(a.Time) {
		return b
	}
	return a
}
