package dflow

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestGuestToHostHTTPRoundTrip(t *testing.T) {
	want := GuestToHost{
		Kind: EffectHTTPRequest,
		HTTP: &Request{
			Method:  MethodPost,
			Path:    "/email/send",
			Body:    []byte(`{"to":"a@example.com"}`),
			Headers: []Header{{Key: "content-type", Value: "application/json"}},
		},
	}

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got GuestToHost
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	data2, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if string(data) != string(data2) {
		t.Fatalf("byte-for-byte round trip failed:\n%s\nvs\n%s", data, data2)
	}
	if got.Random != nil || got.Log != nil {
		t.Fatalf("non-HTTP payload fields should stay nil, got %+v", got)
	}
}

func TestRequestBodyIsArbitraryBytes(t *testing.T) {
	// Request bodies are not necessarily JSON: plain text and raw binary
	// must survive the wire unmodified.
	for _, body := range [][]byte{
		[]byte("plain text, no json here"),
		{0x00, 0x01, 0xfe, 0xff, '\n', 0x80},
	} {
		want := GuestToHost{
			Kind: EffectHTTPRequest,
			HTTP: &Request{Method: MethodPost, Path: "/database/update", Body: body},
		}
		data, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("marshal body %q: %v", body, err)
		}
		var got GuestToHost
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal body %q: %v", body, err)
		}
		if !bytes.Equal(got.HTTP.Body, body) {
			t.Fatalf("body corrupted in transit: want %q, got %q", body, got.HTTP.Body)
		}
	}
}

func TestHostToGuestHTTPResponseRoundTrip(t *testing.T) {
	length := uint64(42)
	want := HostToGuest{
		ID: "01912345-0000-7000-8000-000000000000",
		Content: Content{
			Kind: ContentHTTPResponse,
			HTTP: &HTTPResult{
				Response: &Response{
					Status:        200,
					HTTPVersion:   HTTP11,
					Headers:       []Header{{Key: "x-trace", Value: "abc"}},
					ContentLength: &length,
					URL:           "http://upstream/iss/now",
					Body:          []byte(`{"ok":true}`),
				},
			},
		},
	}

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got HostToGuest
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data2, _ := json.Marshal(got)
	if string(data) != string(data2) {
		t.Fatalf("byte-for-byte round trip failed:\n%s\nvs\n%s", data, data2)
	}
	if got.Content.Value != nil || got.Content.Time != nil {
		t.Fatalf("non-HTTP content fields should stay nil, got %+v", got.Content)
	}
}

func TestHostToGuestErrorResultRoundTrip(t *testing.T) {
	want := HostToGuest{
		ID: NewID(),
		Content: Content{
			Kind: ContentHTTPResponse,
			HTTP: &HTTPResult{
				Error: &Error{URL: "http://upstream/down", Kind: ErrorRequest},
			},
		},
	}

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got HostToGuest
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Content.HTTP.Response != nil {
		t.Fatalf("expected nil Response arm, got %+v", got.Content.HTTP.Response)
	}
	if got.Content.HTTP.Error == nil || got.Content.HTTP.Error.Kind != ErrorRequest {
		t.Fatalf("expected Error arm preserved, got %+v", got.Content.HTTP.Error)
	}
}

func TestScalarRoundTrip(t *testing.T) {
	for _, want := range []Scalar{
		{Kind: ScalarBool, Bool: true},
		{Kind: ScalarI32, I32: -7},
		{Kind: ScalarF32, F32: 3.5},
	} {
		data, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("marshal %+v: %v", want, err)
		}
		var got Scalar
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %+v: %v", want, err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: want %+v, got %+v", want, got)
		}
	}
}
