// Package guest is the thin marshaling surface a guest workflow program
// links against: GuestToHost request builders, HostToGuest response
// destructuring, and a handful of ergonomic wrappers (ErrorForStatus, a
// logger shim, random draws, Now).
//
// It imports nothing from the host-side dflow package beyond the ABI
// types in dflow, because in the real system this package is compiled
// into a separate wasm component — the only thing host and guest share is
// the wire schema. Dispatch is the single import function the real
// component-model bridge would bind; here it is just a function value,
// since the bridge itself (generated bindings + sandbox runtime) is out
// of scope.
package guest

import (
	"encoding/json"
	"fmt"

	"github.com/arclight/dflow"
)

// Dispatch sends one GuestToHost request across the component boundary
// and returns the host's response. In a real guest this call suspends the
// guest's fiber while the host performs or replays the effect; callers in
// this package never see that distinction.
type Dispatch func(req dflow.GuestToHost) (dflow.HostToGuest, error)

// Header is a single request header, exposed as a plain pair so guest
// code doesn't need to build dflow.Header values directly.
type Header struct {
	Key, Value string
}

func toWireHeaders(headers []Header) []dflow.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]dflow.Header, len(headers))
	for i, h := range headers {
		out[i] = dflow.Header{Key: h.Key, Value: h.Value}
	}
	return out
}

// Get performs a GET request to path.
func Get(call Dispatch, path string, headers []Header) (*Response, error) {
	return request(call, dflow.MethodGet, path, headers, nil)
}

// Post performs a POST request to path with an optional body.
func Post(call Dispatch, path string, headers []Header, body []byte) (*Response, error) {
	return request(call, dflow.MethodPost, path, headers, body)
}

// Delete performs a DELETE request to path with an optional body.
func Delete(call Dispatch, path string, headers []Header, body []byte) (*Response, error) {
	return request(call, dflow.MethodDelete, path, headers, body)
}

func request(call Dispatch, method dflow.Method, path string, headers []Header, body []byte) (*Response, error) {
	req := dflow.GuestToHost{
		Kind: dflow.EffectHTTPRequest,
		HTTP: &dflow.Request{
			Method:  method,
			Path:    path,
			Body:    body,
			Headers: toWireHeaders(headers),
		},
	}

	reply, err := call(req)
	if err != nil {
		return nil, err
	}
	if reply.Content.Kind != dflow.ContentHTTPResponse || reply.Content.HTTP == nil {
		return nil, fmt.Errorf("guest: expected http_response content, got %q", reply.Content.Kind)
	}
	result := reply.Content.HTTP
	if result.Error != nil {
		return nil, &dflow.HTTPError{URL: result.Error.URL, Kind: result.Error.Kind}
	}
	return &Response{id: reply.ID, raw: *result.Response}, nil
}

// Response wraps the ABI's Response with the correlation id it arrived
// with, which ErrorForStatus needs to report a targeted failure.
type Response struct {
	id  string
	raw dflow.Response
}

func (r *Response) ID() string                     { return r.id }
func (r *Response) Status() uint16                 { return r.raw.Status }
func (r *Response) HTTPVersion() dflow.HTTPVersion { return r.raw.HTTPVersion }
func (r *Response) URL() string                    { return r.raw.URL }
func (r *Response) ContentLength() *uint64         { return r.raw.ContentLength }
func (r *Response) Bytes() []byte                  { return r.raw.Body }
func (r *Response) Text() string                   { return string(r.raw.Body) }

// Headers returns the response headers as a plain map, last value wins on
// duplicate keys.
func (r *Response) Headers() map[string]string {
	out := make(map[string]string, len(r.raw.Headers))
	for _, h := range r.raw.Headers {
		out[h.Key] = h.Value
	}
	return out
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.raw.Body, v)
}

// ErrorForStatus turns a 4xx/5xx response into a *dflow.WorkflowError
// carrying this response's correlation id, so the host can target exactly
// this effect for retry on the next attempt. A 2xx/3xx response passes
// through unchanged.
func (r *Response) ErrorForStatus() (*Response, error) {
	if r.raw.Status >= 400 {
		return nil, dflow.NewWorkflowError(r.id, fmt.Errorf("http status %d for %s", r.raw.Status, r.raw.URL))
	}
	return r, nil
}
