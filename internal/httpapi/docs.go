package httpapi

import (
	"io/fs"
	"net/http"

	"github.com/ent0n29/tasktrack/internal/openapi"
)

var apiInfo = openapi.Info{
	Title:       "TODO API",
	Version:     "1.0.0",
	Description: "Simple in-memory TODO list API",
}

// OpenAPIDocument describes the todo routes. serverURL may be empty.
func OpenAPIDocument(serverURL string) (openapi.Document, error) {
	routes := todoRoutes()
	specs := make([]openapi.Route, 0, len(routes))
	for _, rt := range routes {
		path := todosBasePath
		if rt.Pattern != "/" {
			path += rt.Pattern
		}
		specs = append(specs, openapi.Route{
			Method:    rt.Method,
			Path:      path,
			Summary:   rt.Summary,
			ID:        rt.ID,
			Schema:    rt.Schema,
			Responses: rt.Responses,
		})
	}
	return openapi.Build(apiInfo, serverURL, specs, responseComponents())
}

func responseComponents() map[string]*openapi.Schema {
	str := func(format string) *openapi.Schema { return &openapi.Schema{Type: "string", Format: format} }
	return map[string]*openapi.Schema{
		"Todo": {
			Type:     "object",
			Required: []string{"completed", "createdAt", "dueDate", "id", "note", "title", "updatedAt"},
			Properties: map[string]*openapi.Schema{
				"id":        str("uuid"),
				"title":     str(""),
				"note":      str(""),
				"completed": {Type: "boolean"},
				"dueDate":   {Type: "string", Format: "date-time", Nullable: true},
				"createdAt": str("date-time"),
				"updatedAt": str("date-time"),
			},
		},
		"FieldError": {
			Type:     "object",
			Required: []string{"field", "message"},
			Properties: map[string]*openapi.Schema{
				"field":   str(""),
				"message": str(""),
			},
		},
		"Error": {
			Type:     "object",
			Required: []string{"message"},
			Properties: map[string]*openapi.Schema{
				"message": str(""),
				"details": {Type: "array", Items: openapi.Ref("FieldError")},
			},
		},
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := OpenAPIDocument("")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.ServeFileFS(w, r, sub, "docs.html")
}
