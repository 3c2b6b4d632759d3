package schema

import (
	"errors"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
}

var ErrInvalidTimestamp = errors.New("invalid ISO 8601 timestamp")

// ParseTimestamp accepts the ISO 8601 forms browsers and date pickers send.
// Values without a zone are read as UTC. The UTC result must fall in years
// 0000 through 9999, the range time.Time can encode as JSON.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	if len(raw) > 10 && raw[10] == ' ' {
		raw = raw[:10] + "T" + raw[11:]
	}
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		ts = ts.UTC()
		if y := ts.Year(); y < 0 || y > 9999 {
			return time.Time{}, ErrInvalidTimestamp
		}
		return ts, nil
	}
	return time.Time{}, ErrInvalidTimestamp
}
