// Package gateway implements the JSON-RPC 2.0 tool gateway. Every tool
// call, regardless of which system the tool wraps, goes through the
// same validation, dispatch, and error envelope here.
package gateway

import (
	"encoding/json"
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"` // Always "2.0"
	ID      any             `json:"id"`      // string, number, or null
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      any          `json:"id"`
	Result  any          `json:"result,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail carries the error code, message, and structured context.
type ErrorDetail struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// JSON-RPC 2.0 standard error codes.
const (
	ParseError     = -32700 // Invalid JSON
	InvalidRequest = -32600 // Malformed request envelope
	MethodNotFound = -32601 // Unknown method
	InvalidParams  = -32602 // Invalid tool params
	InternalError  = -32603 // Internal server error
)

// Application-specific error codes (reserved range: -32000 to -32099).
const (
	ToolNotFound       = -32001 // No tool registered under the name
	ToolExecutionError = -32002 // Handler returned or threw an error
	UnknownError       = -32099 // Anything not otherwise classified
)

// CallParams are the params of a tools/call request.
type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ListResult is the result of a tools/list request.
type ListResult struct {
	Tools []any `json:"tools"`
}

// ContentItem is one entry of a tools/call result's content array.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult wraps a tool's JSON-encoded return value in the protocol
// content shape.
type CallResult struct {
	Content []ContentItem `json:"content"`
}

// success builds a success response.
func success(id, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// failure builds an error response.
func failure(id any, code int, message string, data map[string]any) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}
