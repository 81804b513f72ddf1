package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// Response is the decoded form of a server reply. It is either a *Success or a *Failure.
type Response interface {
	isResponse()
}

// Success holds the payload of an accepted request. When the server wraps its payload in a
// {"data": ...} envelope, Data holds the contents of the envelope.
type Success struct {
	Status int
	Data   json.RawMessage
}

// Failure is a server-reported error. It implements error so that call sites can return it
// directly.
type Failure struct {
	Status  int
	Code    string
	Message string
}

func (*Success) isResponse() {}
func (*Failure) isResponse() {}

// Decode unmarshals the payload into v.
func (s *Success) Decode(v interface{}) error {
	if err := json.Unmarshal(s.Data, v); err != nil {
		return &RemoteProtocolError{Reason: fmt.Sprintf("payload does not match %T", v), Err: err}
	}
	return nil
}

func (f *Failure) Error() string {
	msg := f.Message
	if msg == "" {
		msg = http.StatusText(f.Status)
	}
	if f.Code != "" {
		return fmt.Sprintf("server error %s: %s", f.Code, msg)
	}
	return "server error: " + msg
}

// MayHaveSucceeded is false: the server explicitly rejected the request.
func (f *Failure) MayHaveSucceeded() bool {
	return false
}

func (f *Failure) Temporary() bool {
	return f.Status == http.StatusServiceUnavailable || f.Status == http.StatusTooManyRequests ||
		f.Status == http.StatusBadGateway || f.Status == http.StatusGatewayTimeout
}

// Payload returns the data carried by resp, or resp itself as an error if it is a *Failure.
func Payload(resp Response) (json.RawMessage, error) {
	switch r := resp.(type) {
	case *Success:
		return r.Data, nil
	case *Failure:
		return nil, r
	}
	return nil, &RemoteProtocolError{Reason: fmt.Sprintf("unrecognized response type %T", resp)}
}

// envelope captures every field the server uses to signal success or failure. Fields that are
// absent stay nil.
type envelope struct {
	Data    json.RawMessage   `json:"data"`
	Error   json.RawMessage   `json:"error"`
	Errors  []json.RawMessage `json:"errors"`
	Status  json.RawMessage   `json:"status"`
	Code    json.RawMessage   `json:"code"`
	Message json.RawMessage   `json:"message"`
}

// DecodeResponse classifies an HTTP status and body. A body that is not JSON yields a
// RemoteProtocolError when the status indicates success; otherwise the status alone determines
// the Failure.
func DecodeResponse(status int, body []byte) (Response, error) {
	ok := status >= 200 && status < 300
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) == 0 {
		if ok {
			return &Success{Status: status, Data: json.RawMessage("null")}, nil
		}
		return &Failure{Status: status, Message: http.StatusText(status)}, nil
	}
	if !json.Valid(trimmed) {
		if ok {
			return nil, &RemoteProtocolError{Reason: "body is not valid JSON"}
		}
		return &Failure{Status: status, Message: http.StatusText(status)}, nil
	}

	if trimmed[0] != '{' {
		if ok {
			return &Success{Status: status, Data: json.RawMessage(trimmed)}, nil
		}
		return &Failure{Status: status, Message: http.StatusText(status)}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, &RemoteProtocolError{Reason: "malformed envelope", Err: err}
	}

	if failure, isFailure := env.failure(status); isFailure {
		return failure, nil
	}
	if !ok {
		return &Failure{Status: status, Code: scalarString(env.Code), Message: http.StatusText(status)}, nil
	}
	if env.Data != nil {
		return &Success{Status: status, Data: env.Data}, nil
	}
	return &Success{Status: status, Data: json.RawMessage(trimmed)}, nil
}

func (env *envelope) failure(status int) (*Failure, bool) {
	f := &Failure{Status: status, Code: scalarString(env.Code)}
	switch {
	case isPresent(env.Error):
		var nested envelope
		if err := json.Unmarshal(env.Error, &nested); err == nil && env.Error[0] == '{' {
			if f.Code == "" {
				f.Code = scalarString(nested.Code)
			}
			f.Message = scalarString(nested.Message)
			if f.Message == "" {
				f.Message = scalarString(nested.Error)
			}
		} else {
			f.Message = scalarString(env.Error)
		}
	case len(env.Errors) > 0:
		var first envelope
		if err := json.Unmarshal(env.Errors[0], &first); err == nil && env.Errors[0][0] == '{' {
			f.Message = scalarString(first.Error)
			if f.Message == "" {
				f.Message = scalarString(first.Message)
			}
			if f.Code == "" {
				f.Code = scalarString(first.Code)
			}
		} else {
			f.Message = scalarString(env.Errors[0])
		}
	case scalarString(env.Status) == "error":
		f.Message = scalarString(env.Message)
	default:
		return nil, false
	}
	if f.Message == "" {
		f.Message = http.StatusText(status)
	}
	return f, true
}

func isPresent(raw json.RawMessage) bool {
	return raw != nil && !bytes.Equal(raw, []byte("null")) && !bytes.Equal(raw, []byte("false"))
}

// scalarString renders a JSON string or number as a Go string. Other values render as "".
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}
