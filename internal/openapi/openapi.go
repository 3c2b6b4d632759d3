// Package openapi renders an OpenAPI 3 document from the request schemas
// the API validates with, so the published contract cannot drift from the
// checks the handlers run.
package openapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ent0n29/tasktrack/internal/schema"
)

const Version = "3.0.3"

type Document struct {
	OpenAPI    string              `json:"openapi"`
	Info       Info                `json:"info"`
	Servers    []Server            `json:"servers,omitempty"`
	Paths      map[string]PathItem `json:"paths"`
	Components Components          `json:"components"`
}

type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

type Server struct {
	URL string `json:"url"`
}

type PathItem map[string]*Operation

type Operation struct {
	Summary     string              `json:"summary,omitempty"`
	OperationID string              `json:"operationId,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses"`
}

type Parameter struct {
	Name        string  `json:"name"`
	In          string  `json:"in"`
	Required    bool    `json:"required,omitempty"`
	Description string  `json:"description,omitempty"`
	Schema      *Schema `json:"schema"`
}

type RequestBody struct {
	Required bool                 `json:"required"`
	Content  map[string]MediaType `json:"content"`
}

type MediaType struct {
	Schema *Schema `json:"schema"`
}

type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

type Schema struct {
	Ref         string             `json:"$ref,omitempty"`
	Type        string             `json:"type,omitempty"`
	Format      string             `json:"format,omitempty"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Nullable    bool               `json:"nullable,omitempty"`
	MinLength   *int               `json:"minLength,omitempty"`
	MinProps    *int               `json:"minProperties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

type Components struct {
	Schemas map[string]*Schema `json:"schemas"`
}

// Route describes one endpoint. The request body component is registered
// under Schema.Name.
type Route struct {
	Method    string
	Path      string
	Summary   string
	ID        string
	Schema    schema.Schema
	Responses []Reply
}

type Reply struct {
	Status      int
	Description string
	// Ref names a component schema; Array wraps it in an array.
	Ref   string
	Array bool
}

func Ref(name string) *Schema {
	return &Schema{Ref: "#/components/schemas/" + name}
}

// Build assembles the document. components carries schemas that are not
// derived from request validation, such as response shapes.
func Build(info Info, serverURL string, routes []Route, components map[string]*Schema) (Document, error) {
	doc := Document{
		OpenAPI:    Version,
		Info:       info,
		Paths:      make(map[string]PathItem),
		Components: Components{Schemas: make(map[string]*Schema)},
	}
	if strings.TrimSpace(serverURL) != "" {
		doc.Servers = []Server{{URL: serverURL}}
	}
	for name, s := range components {
		doc.Components.Schemas[name] = s
	}

	for _, rt := range routes {
		method := strings.ToLower(rt.Method)
		item := doc.Paths[rt.Path]
		if item == nil {
			item = make(PathItem)
			doc.Paths[rt.Path] = item
		}
		if _, dup := item[method]; dup {
			return Document{}, fmt.Errorf("duplicate operation %s %s", rt.Method, rt.Path)
		}

		op := &Operation{
			Summary:     rt.Summary,
			OperationID: rt.ID,
			Responses:   make(map[string]Response, len(rt.Responses)),
		}
		for _, f := range rt.Schema.Fields {
			if f.In == schema.InBody {
				continue
			}
			op.Parameters = append(op.Parameters, Parameter{
				Name:        f.Name,
				In:          string(f.In),
				Required:    f.Required || f.In == schema.InPath,
				Description: f.Description,
				Schema:      fieldSchema(f),
			})
		}
		if rt.Schema.HasBody() {
			name := rt.Schema.Name
			if name == "" {
				return Document{}, fmt.Errorf("%s %s: body schema needs a name", rt.Method, rt.Path)
			}
			if _, exists := doc.Components.Schemas[name]; !exists {
				doc.Components.Schemas[name] = ObjectSchema(rt.Schema)
			}
			op.RequestBody = &RequestBody{
				Required: true,
				Content:  map[string]MediaType{"application/json": {Schema: Ref(name)}},
			}
		}
		for _, reply := range rt.Responses {
			resp := Response{Description: reply.Description}
			if reply.Ref != "" {
				s := Ref(reply.Ref)
				if reply.Array {
					s = &Schema{Type: "array", Items: s}
				}
				resp.Content = map[string]MediaType{"application/json": {Schema: s}}
			}
			op.Responses[strconv.Itoa(reply.Status)] = resp
		}
		item[method] = op
	}
	return doc, nil
}

// ObjectSchema converts the body fields of s into an object schema.
func ObjectSchema(s schema.Schema) *Schema {
	obj := &Schema{Type: "object", Properties: make(map[string]*Schema)}
	for _, f := range s.BodyFields() {
		obj.Properties[f.Name] = fieldSchema(f)
		if f.Required {
			obj.Required = append(obj.Required, f.Name)
		}
	}
	sort.Strings(obj.Required)
	if s.RequireAnyBodyField {
		one := 1
		obj.MinProps = &one
	}
	return obj
}

func fieldSchema(f schema.Field) *Schema {
	out := &Schema{Description: f.Description, Nullable: f.Nullable}
	switch f.Kind {
	case schema.Boolean:
		out.Type = "boolean"
	case schema.Timestamp:
		out.Type = "string"
		out.Format = "date-time"
	case schema.UUID:
		out.Type = "string"
		out.Format = "uuid"
	case schema.Enum:
		out.Type = "string"
		out.Enum = append([]string(nil), f.Enum...)
	default:
		out.Type = "string"
	}
	if f.NonEmpty {
		one := 1
		out.MinLength = &one
	}
	return out
}

func (d Document) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
