package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantCode ErrorCode
		wantReq  bool
		wantID   string
	}{
		{name: "valid", in: `{"jsonrpc":"2.0","id":1,"method":"ping"}`, wantReq: true, wantID: "1"},
		{name: "string id", in: `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, wantReq: true, wantID: "abc"},
		{name: "not json", in: `{"jsonrpc":`, wantCode: ErrorCodeParseError},
		{name: "array", in: `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, wantCode: ErrorCodeInvalidRequest},
		{name: "bool id", in: `{"jsonrpc":"2.0","id":true,"method":"ping"}`, wantCode: ErrorCodeInvalidRequest},
		{name: "wrong version", in: `{"jsonrpc":"1.0","id":7,"method":"ping"}`, wantCode: ErrorCodeInvalidRequest, wantReq: true, wantID: "7"},
		{name: "missing method", in: `{"jsonrpc":"2.0","id":8}`, wantCode: ErrorCodeInvalidRequest, wantReq: true, wantID: "8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rpcErr := DecodeRequest([]byte(tt.in))
			if tt.wantCode == 0 && rpcErr != nil {
				t.Fatalf("unexpected error: %v", rpcErr)
			}
			if tt.wantCode != 0 {
				if rpcErr == nil {
					t.Fatalf("expected error code %d", tt.wantCode)
				}
				if rpcErr.Code != tt.wantCode {
					t.Fatalf("code = %d, want %d", rpcErr.Code, tt.wantCode)
				}
			}
			if tt.wantReq != (req != nil) {
				t.Fatalf("request presence = %v, want %v", req != nil, tt.wantReq)
			}
			if req != nil && req.ID.String() != tt.wantID {
				t.Fatalf("id = %q, want %q", req.ID.String(), tt.wantID)
			}
		})
	}
}

func TestDecodeRequest_NotificationVersusNullID(t *testing.T) {
	n, rpcErr := DecodeRequest([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if !n.IsNotification() {
		t.Fatalf("expected notification")
	}

	r, rpcErr := DecodeRequest([]byte(`{"jsonrpc":"2.0","id":null,"method":"ping"}`))
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if r.IsNotification() {
		t.Fatalf("explicit null id must not be treated as a notification")
	}
	if !r.ID.IsNil() {
		t.Fatalf("expected nil id value")
	}
}

func TestResponseAlwaysWritesID(t *testing.T) {
	b, err := json.Marshal(NewErrorResponse(nil, ErrorCodeParseError, "bad", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	id, ok := got["id"]
	if !ok || id != nil {
		t.Fatalf("expected explicit null id, got %s", b)
	}

	resp, err := NewResultResponse(NewRequestID(42), struct{}{})
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	b, _ = json.Marshal(resp)
	if string(b) != `{"jsonrpc":"2.0","result":{},"id":42}` {
		t.Fatalf("unexpected encoding: %s", b)
	}
}
