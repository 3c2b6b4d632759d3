package schema

import (
	"encoding/json"
	"strings"
	"time"
)

// Values holds input that already passed validation, so accessors do not
// report decode errors.
type Values struct {
	params map[string]string
	body   map[string]json.RawMessage
	trim   map[string]bool
}

func (v Values) Param(name string) string {
	return v.params[name]
}

// Has reports whether the body named the field, including as null.
func (v Values) Has(name string) bool {
	_, ok := v.body[name]
	return ok
}

func (v Values) IsNull(name string) bool {
	raw, ok := v.body[name]
	return ok && isNull(raw)
}

func (v Values) String(name string) string {
	var s string
	if raw, ok := v.body[name]; ok && !isNull(raw) {
		_ = json.Unmarshal(raw, &s)
	}
	if v.trim[name] {
		s = strings.TrimSpace(s)
	}
	return s
}

func (v Values) Bool(name string) bool {
	var b bool
	if raw, ok := v.body[name]; ok && !isNull(raw) {
		_ = json.Unmarshal(raw, &b)
	}
	return b
}

// Time returns nil for an absent or null field.
func (v Values) Time(name string) *time.Time {
	raw, ok := v.body[name]
	if !ok || isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return nil
	}
	return &ts
}

func (v Values) anyBodyField(fields []Field) bool {
	for _, f := range fields {
		if v.Has(f.Name) {
			return true
		}
	}
	return false
}
