package protocol

import (
	"encoding/json"
	"fmt"
)

// JSONRPCVersion is the framing version carried on every wire message.
const JSONRPCVersion = "2.0"

// Version is the tether protocol version exchanged during the handshake.
const Version = "0.2"

// Well-known error codes returned by the runtime.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeServerError    = -32000
	CodeDomainError    = -32001
)

// Request is an outbound correlated call. Notifications reuse the same shape
// with ID omitted.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// EncodeRequest serializes a correlated call frame.
func EncodeRequest(id int64, method string, params any) ([]byte, error) {
	data, err := json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	return data, nil
}

// ErrorPayload is the structured error half of a reply.
type ErrorPayload struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorPayload) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// BudgetExceeded reports whether this error is the billing collaborator's
// insufficient-balance shape. The payload is still propagated verbatim; this
// only saves presentation layers from re-parsing the data field.
func (e *ErrorPayload) BudgetExceeded() bool {
	if e.Code != CodeDomainError || len(e.Data) == 0 {
		return false
	}
	var data struct {
		ErrorType string `json:"error_type"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return false
	}
	return data.ErrorType == "budget_exceeded"
}

// Reply is an inbound frame correlated to a call by id. Exactly one of
// Result and Err must be present; anything else is a protocol violation.
type Reply struct {
	ID     int64
	Result json.RawMessage
	Err    *ErrorPayload
}

func (r *Reply) inbound() {}

// Valid reports whether the reply carries exactly one of result and error.
func (r *Reply) Valid() bool {
	return (len(r.Result) > 0) != (r.Err != nil)
}

// Inbound is one decoded wire frame: either a *Reply or a Notification.
type Inbound interface {
	inbound()
}

// frame is the raw superset shape of every wire message.
type frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *ErrorPayload   `json:"error"`
}

// DecodeFrame classifies one wire message. Frames with an id are replies;
// frames with a method and no id are notifications. An unrecognized
// notification method yields *UnknownMethodError so callers can log and
// ignore it without treating it as corruption.
func DecodeFrame(data []byte) (Inbound, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	if f.ID != nil {
		return &Reply{ID: *f.ID, Result: f.Result, Err: f.Error}, nil
	}
	if f.Method != "" {
		return DecodeNotification(f.Method, f.Params)
	}
	return nil, fmt.Errorf("frame has neither id nor method")
}

// UnknownMethodError marks a notification method this client does not
// recognize. Protocol evolution must not crash the client, so the dispatch
// loop drops these after logging.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown notification method: %s", e.Method)
}
