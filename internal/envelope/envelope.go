// Package envelope defines the JSON shape exchanged on an RPC connection and
// classifies incoming text frames as requests, responses, or neither.
package envelope

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Request is the wire shape of an outgoing call or an incoming dispatch
// target. FunctionName names the method on the bound local object;
// Arguments are positionally matched to its parameters; CallID correlates
// the eventual Response.
//
// A zero-value Request (every field absent from the JSON) is not a request
// at all — see IsEmpty.
type Request struct {
	FunctionName string            `json:"functionName,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	CallID       json.RawMessage   `json:"callId,omitempty"`
}

// IsEmpty reports whether r names no function, i.e. the frame should not be
// treated as an RPC request. A response-shaped frame (callId plus
// returnValue or error) therefore parses as an empty Request.
func (r Request) IsEmpty() bool {
	return r.FunctionName == ""
}

// Response is the wire shape of a reply to a Request. Exactly one of
// ReturnValue or Error is meaningful: ReturnValue on success (raw JSON null
// for void methods), Error (non-empty) on failure.
type Response struct {
	CallID      json.RawMessage `json:"callId,omitempty"`
	ReturnValue json.RawMessage `json:"returnValue,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// IsEmpty reports whether r carries neither a returnValue nor an error, i.e.
// the frame should not be treated as an RPC response. A request-shaped frame
// (functionName, arguments, callId) therefore parses as an empty Response.
func (r Response) IsEmpty() bool {
	return r.ReturnValue == nil && r.Error == ""
}

// ParseRequest attempts to decode text as a Request envelope. A JSON parse
// failure yields the zero Request and a non-nil error; otherwise the decoded
// Request is returned as is, and the caller uses IsEmpty to tell whether the
// frame is a request at all.
func ParseRequest(text []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(text, &req); err != nil {
		return Request{}, errors.Wrap(err, "envelope: parse request")
	}
	return req, nil
}

// ParseResponse attempts to decode text as a Response envelope.
func ParseResponse(text []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(text, &resp); err != nil {
		return Response{}, errors.Wrap(err, "envelope: parse response")
	}
	return resp, nil
}

// IsRPCMessage reports whether text parses as a non-empty Request or a
// non-empty Response. Frames that fail both checks (including malformed
// JSON) are not RPC messages and should be passed through to the
// application's receive notification unchanged.
func IsRPCMessage(text []byte) bool {
	if req, err := ParseRequest(text); err == nil && !req.IsEmpty() {
		return true
	}
	if resp, err := ParseResponse(text); err == nil && !resp.IsEmpty() {
		return true
	}
	return false
}

// EncodeRequest marshals a Request to its wire representation.
func EncodeRequest(r Request) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "envelope: encode request")
	}
	return data, nil
}

// EncodeResponse marshals a Response to its wire representation.
func EncodeResponse(r Response) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "envelope: encode response")
	}
	return data, nil
}
