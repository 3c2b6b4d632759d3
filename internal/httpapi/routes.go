package httpapi

import (
	"net/http"

	"github.com/ent0n29/tasktrack/internal/openapi"
	"github.com/ent0n29/tasktrack/internal/schema"
)

const todosBasePath = "/api/todos"

type todoHandler func(s *Server, w http.ResponseWriter, r *http.Request, v schema.Values) error

// todoRoute binds a pattern under todosBasePath to its request schema. The
// same table drives the router and the OpenAPI document.
type todoRoute struct {
	Method    string
	Pattern   string
	ID        string
	Summary   string
	Schema    schema.Schema
	Responses []openapi.Reply
	Handle    todoHandler
}

var (
	idParam = schema.Field{
		Name: "id", In: schema.InPath, Kind: schema.UUID, Required: true,
		Message: "id must be a UUID", Description: "Todo identifier",
	}
	titleField = schema.Field{
		Name: "title", In: schema.InBody, Kind: schema.String, Required: true, NonEmpty: true,
		Message: "title is required",
	}
	noteField = schema.Field{
		Name: "note", In: schema.InBody, Kind: schema.String, Nullable: true,
		Message: "note must be a string",
	}
	completedField = schema.Field{
		Name: "completed", In: schema.InBody, Kind: schema.Boolean, Required: true,
		Message: "completed must be boolean",
	}
	dueDateField = schema.Field{
		Name: "dueDate", In: schema.InBody, Kind: schema.Timestamp, Nullable: true,
		Message: "dueDate must be an ISO 8601 string",
	}
)

var (
	listSchema = schema.Schema{
		Fields: []schema.Field{{
			Name: "status", In: schema.InQuery, Kind: schema.Enum,
			Enum:        []string{"active", "completed"},
			Message:     "status must be active or completed",
			Description: "Filter by completion status",
		}},
	}
	getSchema    = schema.Schema{Fields: []schema.Field{idParam}}
	createSchema = schema.Schema{
		Name:   "TodoInput",
		Fields: []schema.Field{titleField, noteField, dueDateField},
	}
	replaceSchema = schema.Schema{
		Name:   "TodoUpdate",
		Fields: []schema.Field{idParam, titleField, noteField, completedField, dueDateField},
	}
	patchSchema = schema.Schema{
		Name:                "TodoPatch",
		RequireAnyBodyField: true,
		Fields: []schema.Field{
			idParam,
			optional(titleField, "title must be a non-empty string"),
			noteField,
			optional(completedField, ""),
			dueDateField,
		},
	}
)

func optional(f schema.Field, message string) schema.Field {
	f.Required = false
	if message != "" {
		f.Message = message
	}
	return f
}

var (
	replyBadRequest = openapi.Reply{Status: http.StatusBadRequest, Description: "Validation failed", Ref: "Error"}
	replyNotFound   = openapi.Reply{Status: http.StatusNotFound, Description: "Not found", Ref: "Error"}
)

func todoRoutes() []todoRoute {
	return []todoRoute{
		{
			Method: http.MethodGet, Pattern: "/", ID: "listTodos", Summary: "List todos",
			Schema: listSchema,
			Responses: []openapi.Reply{
				{Status: http.StatusOK, Description: "A list of todos", Ref: "Todo", Array: true},
				replyBadRequest,
			},
			Handle: (*Server).handleListTodos,
		},
		{
			Method: http.MethodPost, Pattern: "/", ID: "createTodo", Summary: "Create a todo",
			Schema: createSchema,
			Responses: []openapi.Reply{
				{Status: http.StatusCreated, Description: "Created todo", Ref: "Todo"},
				replyBadRequest,
			},
			Handle: (*Server).handleCreateTodo,
		},
		{
			Method: http.MethodGet, Pattern: "/{id}", ID: "getTodo", Summary: "Get a todo by id",
			Schema: getSchema,
			Responses: []openapi.Reply{
				{Status: http.StatusOK, Description: "A todo", Ref: "Todo"},
				replyBadRequest,
				replyNotFound,
			},
			Handle: (*Server).handleGetTodo,
		},
		{
			Method: http.MethodPut, Pattern: "/{id}", ID: "replaceTodo", Summary: "Replace a todo",
			Schema: replaceSchema,
			Responses: []openapi.Reply{
				{Status: http.StatusOK, Description: "Updated todo", Ref: "Todo"},
				replyBadRequest,
				replyNotFound,
			},
			Handle: (*Server).handleReplaceTodo,
		},
		{
			Method: http.MethodPatch, Pattern: "/{id}", ID: "patchTodo", Summary: "Update todo fields",
			Schema: patchSchema,
			Responses: []openapi.Reply{
				{Status: http.StatusOK, Description: "Updated todo", Ref: "Todo"},
				replyBadRequest,
				replyNotFound,
			},
			Handle: (*Server).handlePatchTodo,
		},
		{
			Method: http.MethodDelete, Pattern: "/{id}", ID: "deleteTodo", Summary: "Delete a todo",
			Schema: getSchema,
			Responses: []openapi.Reply{
				{Status: http.StatusNoContent, Description: "Deleted"},
				replyBadRequest,
				replyNotFound,
			},
			Handle: (*Server).handleDeleteTodo,
		},
	}
}
