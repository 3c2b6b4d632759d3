// Package schema validates requests against declarative per-endpoint
// definitions. It knows nothing about HTTP handlers: a Request is just the
// path params, query values and raw body of a call, and validation yields
// either the accepted Values or a ValidationError listing every bad field.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

type Location string

const (
	InPath  Location = "path"
	InQuery Location = "query"
	InBody  Location = "body"
)

type Kind string

const (
	String    Kind = "string"
	Boolean   Kind = "boolean"
	Timestamp Kind = "date-time"
	UUID      Kind = "uuid"
	Enum      Kind = "enum"
)

// Field declares one input. NonEmpty trims the value and rejects blank
// strings. Nullable admits an explicit JSON null.
type Field struct {
	Name        string
	In          Location
	Kind        Kind
	Required    bool
	Nullable    bool
	NonEmpty    bool
	Enum        []string
	Message     string
	Description string
}

type Schema struct {
	Name string
	// RequireAnyBodyField rejects bodies that name none of the body fields.
	RequireAnyBodyField bool
	Fields              []Field
}

type Request struct {
	Path  map[string]string
	Query url.Values
	Body  []byte
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Message string
	Details []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

const (
	MessageValidationFailed = "Validation failed"
	MessageInvalidJSON      = "Invalid JSON body"
	MessageEmptyBody        = "Request body cannot be empty"
)

func (s Schema) BodyFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.In == InBody {
			out = append(out, f)
		}
	}
	return out
}

func (s Schema) HasBody() bool {
	return len(s.BodyFields()) > 0
}

// Validate checks req against every field and returns all failures at once.
func (s Schema) Validate(req Request) (Values, error) {
	vals := Values{
		params: make(map[string]string),
		body:   make(map[string]json.RawMessage),
		trim:   make(map[string]bool),
	}

	var details []FieldError
	fail := func(f Field, fallback string) {
		msg := f.Message
		if msg == "" {
			msg = fallback
		}
		details = append(details, FieldError{Field: f.Name, Message: msg})
	}

	if s.HasBody() {
		body, err := decodeObject(req.Body)
		if err != nil {
			return Values{}, err
		}
		vals.body = body
	}

	for _, f := range s.Fields {
		switch f.In {
		case InPath, InQuery:
			raw, present := lookupParam(req, f)
			if !present || raw == "" {
				if f.Required {
					fail(f, f.Name+" is required")
				}
				continue
			}
			if msg := checkParam(f, raw); msg != "" {
				fail(f, msg)
				continue
			}
			vals.params[f.Name] = raw
		case InBody:
			raw, present := vals.body[f.Name]
			if !present {
				if f.Required {
					fail(f, f.Name+" is required")
				}
				continue
			}
			if msg := checkBody(f, raw); msg != "" {
				fail(f, msg)
				continue
			}
			if f.NonEmpty {
				vals.trim[f.Name] = true
			}
		}
	}

	if s.RequireAnyBodyField && !vals.anyBodyField(s.BodyFields()) {
		details = append([]FieldError{{Field: "body", Message: MessageEmptyBody}}, details...)
	}

	if len(details) > 0 {
		return Values{}, &ValidationError{Message: MessageValidationFailed, Details: details}
	}
	return vals, nil
}

func lookupParam(req Request, f Field) (string, bool) {
	if f.In == InPath {
		v, ok := req.Path[f.Name]
		return strings.TrimSpace(v), ok
	}
	if req.Query == nil {
		return "", false
	}
	vs, ok := req.Query[f.Name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return strings.TrimSpace(vs[0]), true
}

func checkParam(f Field, raw string) string {
	switch f.Kind {
	case UUID:
		if _, err := uuid.Parse(raw); err != nil {
			return f.Name + " must be a UUID"
		}
	case Enum:
		for _, allowed := range f.Enum {
			if raw == allowed {
				return ""
			}
		}
		return f.Name + " must be one of " + strings.Join(f.Enum, ", ")
	case Timestamp:
		if _, err := ParseTimestamp(raw); err != nil {
			return f.Name + " must be an ISO 8601 string"
		}
	case Boolean:
		if raw != "true" && raw != "false" {
			return f.Name + " must be boolean"
		}
	}
	return ""
}

func checkBody(f Field, raw json.RawMessage) string {
	if isNull(raw) {
		if f.Nullable {
			return ""
		}
		return fmt.Sprintf("%s must not be null", f.Name)
	}
	switch f.Kind {
	case String, Enum, UUID:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return f.Name + " must be a string"
		}
		if f.NonEmpty && strings.TrimSpace(s) == "" {
			return f.Name + " must not be empty"
		}
		if f.Kind != String {
			return checkParam(f, s)
		}
	case Boolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return f.Name + " must be boolean"
		}
	case Timestamp:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return f.Name + " must be an ISO 8601 string"
		}
		if _, err := ParseTimestamp(s); err != nil {
			return f.Name + " must be an ISO 8601 string"
		}
	}
	return ""
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || isNull(trimmed) {
		return make(map[string]json.RawMessage), nil
	}
	if trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return nil, &ValidationError{Message: MessageInvalidJSON}
		}
		return nil, &ValidationError{
			Message: MessageValidationFailed,
			Details: []FieldError{{Field: "body", Message: "Request body must be a JSON object"}},
		}
	}
	out := make(map[string]json.RawMessage)
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, &ValidationError{Message: MessageInvalidJSON}
	}
	return out, nil
}

func isNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
