package delivery

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
)

func TestEncodeQuery(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{
			name:    "flat scalars sorted",
			payload: map[string]any{"b": "two", "a": "one"},
			want:    "a=one&b=two",
		},
		{
			name:    "nested object",
			payload: map[string]any{"user": map[string]any{"name": "ada", "age": float64(36)}},
			want:    "user%5Bage%5D=36&user%5Bname%5D=ada",
		},
		{
			name:    "array brackets",
			payload: map[string]any{"tags": []any{"x", "y"}},
			want:    "tags%5B%5D=x&tags%5B%5D=y",
		},
		{
			name:    "integer without decimal point",
			payload: map[string]any{"count": float64(42)},
			want:    "count=42",
		},
		{
			name:    "float keeps fraction",
			payload: map[string]any{"ratio": 2.5},
			want:    "ratio=2.5",
		},
		{
			name:    "bool and null",
			payload: map[string]any{"ok": true, "gone": nil},
			want:    "gone=&ok=true",
		},
		{
			name:    "escaped characters",
			payload: map[string]any{"q": "a b&c"},
			want:    "q=a+b%26c",
		},
		{
			name:    "empty payload",
			payload: map[string]any{},
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeQuery(tt.payload); got != tt.want {
				t.Errorf("EncodeQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildRequestGetQuery(t *testing.T) {
	task := Task{
		URL:     "http://example.com/hook",
		Method:  "get",
		Payload: map[string]any{"order": map[string]any{"id": float64(7)}, "source": "api"},
	}
	req, err := BuildRequest(context.Background(), task)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	if req.Method != "GET" {
		t.Errorf("method = %q, want GET", req.Method)
	}
	vals, err := url.ParseQuery(req.URL.RawQuery)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	if got := vals.Get("order[id]"); got != "7" {
		t.Errorf("order[id] = %q, want 7", got)
	}
	if got := vals.Get("source"); got != "api" {
		t.Errorf("source = %q, want api", got)
	}
	body, _ := io.ReadAll(req.Body)
	if len(body) != 0 {
		t.Errorf("GET request carried a body: %q", body)
	}
}

func TestBuildRequestGetAppendsToExistingQuery(t *testing.T) {
	task := Task{
		URL:     "http://example.com/hook?fixed=1",
		Method:  "GET",
		Payload: map[string]any{"a": "b"},
	}
	req, err := BuildRequest(context.Background(), task)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	if !strings.Contains(req.URL.RawQuery, "fixed=1") || !strings.Contains(req.URL.RawQuery, "a=b") {
		t.Errorf("query = %q, want both fixed=1 and a=b", req.URL.RawQuery)
	}
}

func TestBuildRequestPostBody(t *testing.T) {
	task := Task{
		URL:     "http://example.com/hook",
		Method:  "POST",
		Payload: map[string]any{"event": "created"},
	}
	req, err := BuildRequest(context.Background(), task)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	body, _ := io.ReadAll(req.Body)
	if string(body) != `{"event":"created"}` {
		t.Errorf("body = %q", body)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := req.Header.Get("User-Agent"); got != "Hookline-Webhook/1.0" {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestBuildRequestHeadersNotOverridden(t *testing.T) {
	task := Task{
		URL:    "http://example.com/hook",
		Method: "POST",
		Headers: map[string]string{
			"Content-Type": "application/vnd.custom+json",
			"User-Agent":   "custom-agent",
			"X-Api-Key":    "secret",
		},
		Payload: map[string]any{"k": "v"},
	}
	req, err := BuildRequest(context.Background(), task)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	if got := req.Header.Get("Content-Type"); got != "application/vnd.custom+json" {
		t.Errorf("Content-Type = %q, destination header was overridden", got)
	}
	if got := req.Header.Get("User-Agent"); got != "custom-agent" {
		t.Errorf("User-Agent = %q, destination header was overridden", got)
	}
	if got := req.Header.Get("X-Api-Key"); got != "secret" {
		t.Errorf("X-Api-Key = %q", got)
	}
}

func TestBuildRequestDeleteHasNoBody(t *testing.T) {
	task := Task{
		URL:     "http://example.com/hook",
		Method:  "DELETE",
		Payload: map[string]any{"ignored": true},
	}
	req, err := BuildRequest(context.Background(), task)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	body, _ := io.ReadAll(req.Body)
	if len(body) != 0 {
		t.Errorf("DELETE request carried a body: %q", body)
	}
	if req.URL.RawQuery != "" {
		t.Errorf("DELETE request carried a query: %q", req.URL.RawQuery)
	}
}

func TestBuildRequestRejectsUnknownMethod(t *testing.T) {
	_, err := BuildRequest(context.Background(), Task{URL: "http://example.com", Method: "BREW"})
	if err == nil {
		t.Fatal("BuildRequest() accepted unsupported method")
	}
}

func TestValidMethod(t *testing.T) {
	for _, m := range []string{"GET", "post", "Put", "PATCH", "delete", "HEAD", "OPTIONS"} {
		if !ValidMethod(m) {
			t.Errorf("ValidMethod(%q) = false, want true", m)
		}
	}
	for _, m := range []string{"", "TRACE", "CONNECT", "BREW"} {
		if ValidMethod(m) {
			t.Errorf("ValidMethod(%q) = true, want false", m)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		doErr  error
		status int
		want   Outcome
	}{
		{"200 ok", nil, 200, OutcomeSuccess},
		{"201 created", nil, 201, OutcomeSuccess},
		{"302 redirect", nil, 302, OutcomeSuccess},
		{"399 boundary", nil, 399, OutcomeSuccess},
		{"400 bad request", nil, 400, OutcomePermanent},
		{"404 not found", nil, 404, OutcomePermanent},
		{"429 throttled", nil, 429, OutcomePermanent},
		{"499 boundary", nil, 499, OutcomePermanent},
		{"500 server error", nil, 500, OutcomeRetryable},
		{"503 unavailable", nil, 503, OutcomeRetryable},
		{"transport error", errTimeout, 0, OutcomeRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.doErr, tt.status); got != tt.want {
				t.Errorf("Classify(%v, %d) = %v, want %v", tt.doErr, tt.status, got, tt.want)
			}
		})
	}
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

var errTimeout = fakeErr("net/http: request canceled (Client.Timeout exceeded)")

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name   string
		doErr  error
		status int
		want   string
	}{
		{"timeout", errTimeout, 0, "timeout"},
		{"deadline", fakeErr("context deadline exceeded"), 0, "timeout"},
		{"refused", fakeErr("dial tcp 127.0.0.1:9: connect: connection refused"), 0, "connection_refused"},
		{"dns", fakeErr("dial tcp: lookup nowhere.invalid: no such host"), 0, "dns_error"},
		{"other network", fakeErr("read: connection reset by peer"), 0, "network"},
		{"server error", nil, 502, "http_5xx"},
		{"client error", nil, 410, "http_4xx"},
		{"success", nil, 200, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureReason(tt.doErr, tt.status); got != tt.want {
				t.Errorf("FailureReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		doErr  error
		status int
		want   string
	}{
		{nil, 204, "2xx"},
		{nil, 301, "3xx"},
		{nil, 404, "4xx"},
		{nil, 500, "5xx"},
		{errTimeout, 0, "error"},
	}
	for _, tt := range tests {
		if got := StatusClass(tt.doErr, tt.status); got != tt.want {
			t.Errorf("StatusClass(%v, %d) = %q, want %q", tt.doErr, tt.status, got, tt.want)
		}
	}
}
