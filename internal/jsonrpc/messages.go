package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Request represents a JSON-RPC request (with an ID) or notification (without ID).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether the request omitted its id member entirely.
// An explicit "id": null is still a request and gets a response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response represents a JSON-RPC response. The id member is always written,
// as null when the request id could not be determined.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         resultBytes,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// DecodeRequest validates the request envelope in data.
//
// Bytes that are not JSON yield ErrorCodeParseError. Valid JSON that is not a
// request object, carries an id that is neither string, number nor null, uses
// a version other than "2.0" or lacks a method yields ErrorCodeInvalidRequest.
// Whenever the id could be decoded the returned Request is non-nil, so callers
// can echo it in the error response.
func DecodeRequest(data []byte) (*Request, *Error) {
	if !json.Valid(data) {
		return nil, &Error{Code: ErrorCodeParseError, Message: "Failed to parse JSON-RPC request"}
	}

	var raw struct {
		JSONRPCVersion string          `json:"jsonrpc"`
		Method         string          `json:"method"`
		Params         json.RawMessage `json:"params"`
		ID             json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Code: ErrorCodeInvalidRequest, Message: "request must be a JSON object"}
	}

	req := &Request{
		JSONRPCVersion: raw.JSONRPCVersion,
		Method:         raw.Method,
		Params:         raw.Params,
	}
	if len(raw.ID) > 0 {
		id := new(RequestID)
		if err := id.UnmarshalJSON(raw.ID); err != nil {
			return nil, &Error{Code: ErrorCodeInvalidRequest, Message: err.Error()}
		}
		req.ID = id
	}

	if req.JSONRPCVersion != ProtocolVersion {
		return req, &Error{Code: ErrorCodeInvalidRequest, Message: "jsonrpc must be '2.0'"}
	}
	if req.Method == "" {
		return req, &Error{Code: ErrorCodeInvalidRequest, Message: "method is required"}
	}

	return req, nil
}
