package a2a

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// JSON-RPC 2.0 ENVELOPE
// Every POST /a2a/tasks body and nested delegation message uses this.
// ============================================================================

const JSONRPCVersion = "2.0"

// JSON-RPC error codes. The negative 32xxx range follows the JSON-RPC spec;
// the -320xx block is A2A-specific.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeTaskNotFound     = -32001
	CodeTaskInvalidState = -32002
	CodeSkillNotFound    = -32003
	CodeAuthRequired     = -32010
	CodeAuthForbidden    = -32011
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id"`
}

// Validate checks the envelope version and method presence.
func (r *Request) Validate() error {
	if r.JSONRPC != JSONRPCVersion {
		return fmt.Errorf("unsupported jsonrpc version %q", r.JSONRPC)
	}
	if r.Method == "" {
		return fmt.Errorf("missing method")
	}
	return nil
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string     `json:"jsonrpc"`
	Result  any        `json:"result,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	ID      any        `json:"id"`
}

// ErrorBody is the error member of a failed response.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ErrorBody) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Success builds a success response echoing the request id.
func Success(id any, result any) Response {
	return Response{JSONRPC: JSONRPCVersion, Result: result, ID: id}
}

// Error builds an error response echoing the request id.
func Error(id any, code int, message string) Response {
	return Response{JSONRPC: JSONRPCVersion, Error: &ErrorBody{Code: code, Message: message}, ID: id}
}

// ErrorWithData builds an error response carrying structured data.
func ErrorWithData(id any, code int, message string, data any) Response {
	return Response{JSONRPC: JSONRPCVersion, Error: &ErrorBody{Code: code, Message: message, Data: data}, ID: id}
}

// ============================================================================
// RPC METHOD PARAMETERS
// ============================================================================

// Task RPC method names accepted on POST /a2a/tasks.
const (
	MethodTasksSend          = "tasks/send"
	MethodTasksSendSubscribe = "tasks/sendSubscribe"
)

// TaskSendParams are the params of tasks/send and tasks/sendSubscribe.
type TaskSendParams struct {
	Message   Message        `json:"message"`
	ContextID string         `json:"contextId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	// PushCallback registers a push-notification URL at creation time.
	PushCallback string `json:"pushCallback,omitempty"`
}
