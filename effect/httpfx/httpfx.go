// Package httpfx is the HTTP effect performer: it turns an ABI
// dflow.Request into an outbound call and maps the outcome into the ABI's
// dflow.Response/dflow.Error shapes. It defaults to net/http behind a
// Doer seam so tests and alternative transports can substitute their own
// client.
package httpfx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/arclight/dflow"
)

// Doer is the minimal surface httpfx needs from an HTTP client. *http.Client
// satisfies it directly.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Performer implements dflow.HTTPPerformer against a base URL and a Doer.
// BaseURL is prefixed to every ABI request's Path, mirroring the guest's
// path-only Request shape (the guest never sees a full URL, only the host
// knows the sandbox's upstream).
type Performer struct {
	BaseURL string
	Client  Doer
}

// New builds a Performer with a default *http.Client.
func New(baseURL string) *Performer {
	return &Performer{BaseURL: baseURL, Client: &http.Client{}}
}

var _ dflow.HTTPPerformer = (*Performer)(nil)

// Perform executes req and maps the result into the ABI's Result<Response,
// Error> shape. Both outcomes are considered "performed successfully" from
// the replay engine's point of view — only a genuine host-side failure to
// even attempt the call would have aborted earlier, in
// dflow.Handlers.performHTTP.
func (p *Performer) Perform(ctx context.Context, req dflow.Request) (*dflow.Response, *dflow.Error) {
	target := p.BaseURL + req.Path
	if _, err := url.Parse(target); err != nil {
		return nil, &dflow.Error{URL: target, Kind: dflow.ErrorBuilder}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), target, body)
	if err != nil {
		return nil, &dflow.Error{URL: target, Kind: dflow.ErrorBuilder}
	}
	for _, h := range req.Headers {
		httpReq.Header.Add(h.Key, h.Value)
	}

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, &dflow.Error{URL: target, Kind: classifyTransportError(err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &dflow.Error{URL: target, Kind: dflow.ErrorBody}
	}

	return &dflow.Response{
		Status:        uint16(resp.StatusCode),
		HTTPVersion:   mapVersion(resp.Proto),
		Headers:       mapHeaders(resp.Header),
		ContentLength: contentLength(resp.ContentLength),
		URL:           target,
		Body:          data,
	}, nil
}

func mapHeaders(h http.Header) []dflow.Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]dflow.Header, 0, len(h))
	for k, vs := range h {
		for _, v := range vs {
			out = append(out, dflow.Header{Key: k, Value: v})
		}
	}
	return out
}

func contentLength(n int64) *uint64 {
	if n < 0 {
		return nil
	}
	u := uint64(n)
	return &u
}

func mapVersion(proto string) dflow.HTTPVersion {
	switch proto {
	case "HTTP/0.9":
		return dflow.HTTP09
	case "HTTP/1.0":
		return dflow.HTTP10
	case "HTTP/2.0":
		return dflow.HTTP20
	case "HTTP/3.0":
		return dflow.HTTP30
	default:
		return dflow.HTTP11
	}
}

// classifyTransportError maps a net/http-level error into the ABI's
// ErrorKind enum. net/http folds DNS failures, connection refusal, and TLS
// errors all into a generic *url.Error, so the classification is coarse:
// Redirect is reported only for a *url.Error wrapping
// http.ErrUseLastResponse; every other error, including a redirect-limit
// failure from the client's redirect policy, is treated as Request.
func classifyTransportError(err error) dflow.ErrorKind {
	var urlErr *url.Error
	if e, ok := err.(*url.Error); ok {
		urlErr = e
	}
	if urlErr != nil && urlErr.Err == http.ErrUseLastResponse {
		return dflow.ErrorRedirect
	}
	return dflow.ErrorRequest
}

// IsTransient reports whether status is conventionally worth retrying at
// the transport level (429 Too Many Requests, 503 Service Unavailable).
// Nothing in dflow.RetrieveOrElse retries automatically on this — it is
// exposed for callers building their own transient-retry policy around a
// Performer, e.g. a sandbox engine's outbound calls to its own backend.
func IsTransient(status uint16) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}
