package envelope_test

import (
	"encoding/json"
	"testing"

	"github.com/kodeflow-oss/wsrpc/internal/envelope"
)

func TestParseRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		wantEmpty bool
		wantFunc  string
	}{
		{
			name:      "well formed request",
			text:      `{"functionName":"echo","arguments":["hello"],"callId":"1"}`,
			wantEmpty: false,
			wantFunc:  "echo",
		},
		{
			name:      "empty object",
			text:      `{}`,
			wantEmpty: true,
		},
		{
			name:      "response shaped frame",
			text:      `{"callId":"1","returnValue":"hello"}`,
			wantEmpty: true,
		},
		{
			name:      "no arguments",
			text:      `{"functionName":"ping","callId":2}`,
			wantEmpty: false,
			wantFunc:  "ping",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, err := envelope.ParseRequest([]byte(tt.text))
			if err != nil {
				t.Fatalf("ParseRequest() error = %v", err)
			}

			if req.IsEmpty() != tt.wantEmpty {
				t.Errorf("IsEmpty() = %v, want %v", req.IsEmpty(), tt.wantEmpty)
			}

			if !tt.wantEmpty && req.FunctionName != tt.wantFunc {
				t.Errorf("FunctionName = %v, want %v", req.FunctionName, tt.wantFunc)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		wantEmpty bool
		wantError string
	}{
		{
			name:      "success response",
			text:      `{"callId":"1","returnValue":"hello"}`,
			wantEmpty: false,
		},
		{
			name:      "error response",
			text:      `{"callId":"1","error":"method not found: missing"}`,
			wantEmpty: false,
			wantError: "method not found: missing",
		},
		{
			name:      "empty object",
			text:      `{}`,
			wantEmpty: true,
		},
		{
			name:      "request shaped frame",
			text:      `{"functionName":"echo","arguments":["hello"],"callId":"1"}`,
			wantEmpty: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, err := envelope.ParseResponse([]byte(tt.text))
			if err != nil {
				t.Fatalf("ParseResponse() error = %v", err)
			}

			if resp.IsEmpty() != tt.wantEmpty {
				t.Errorf("IsEmpty() = %v, want %v", resp.IsEmpty(), tt.wantEmpty)
			}

			if resp.Error != tt.wantError {
				t.Errorf("Error = %v, want %v", resp.Error, tt.wantError)
			}
		})
	}
}

func TestIsRPCMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"request", `{"functionName":"echo","arguments":[],"callId":"1"}`, true},
		{"response", `{"callId":"1","returnValue":42}`, true},
		{"opaque chat text", `hello everyone`, false},
		{"opaque json, not rpc shaped", `{"type":"chat","body":"hi"}`, false},
		{"empty object", `{}`, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := envelope.IsRPCMessage([]byte(tt.text)); got != tt.want {
				t.Errorf("IsRPCMessage(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	req := envelope.Request{
		FunctionName: "echo",
		Arguments:    []json.RawMessage{json.RawMessage(`"hello"`)},
		CallID:       json.RawMessage(`"1"`),
	}

	data, err := envelope.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}

	got, err := envelope.ParseRequest(data)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}

	if got.FunctionName != req.FunctionName {
		t.Errorf("FunctionName = %v, want %v", got.FunctionName, req.FunctionName)
	}
	if len(got.Arguments) != 1 || string(got.Arguments[0]) != `"hello"` {
		t.Errorf("Arguments = %v, want [\"hello\"]", got.Arguments)
	}
}

func TestEncodeResponseErrorIsExclusive(t *testing.T) {
	t.Parallel()

	resp := envelope.Response{
		CallID: json.RawMessage(`"9"`),
		Error:  "method not found: missing",
	}

	data, err := envelope.EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse() error = %v", err)
	}

	got, err := envelope.ParseResponse(data)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}

	if got.ReturnValue != nil {
		t.Errorf("ReturnValue = %v, want nil when Error is set", got.ReturnValue)
	}
	if got.Error != resp.Error {
		t.Errorf("Error = %v, want %v", got.Error, resp.Error)
	}
}
