package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/booksyapp/booksy-server/internal/http/response"
)

// EnvelopeTransformer wraps successful response bodies as {"success": true, "data": ...}.
// Error bodies are written as-is so clients always see {"code", "message", "details"}.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.(error); ok {
		return v, nil
	}
	if status != "" && status[0] >= '4' {
		return v, nil
	}
	return response.Envelope{Success: true, Data: v}, nil
}
