package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultContentType = "application/json"
	defaultUserAgent   = "Hookline-Webhook/1.0"
)

// Outcome classifies the result of one outbound dispatch.
type Outcome int

const (
	// OutcomeSuccess: HTTP response with status < 400. No further attempts.
	OutcomeSuccess Outcome = iota
	// OutcomePermanent: HTTP 4xx. Client errors are non-transient; never retried.
	OutcomePermanent
	// OutcomeRetryable: HTTP 5xx or a transport-level error (timeout, refused, DNS).
	OutcomeRetryable
)

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// ValidMethod reports whether m is a dispatchable HTTP method.
func ValidMethod(m string) bool {
	return allowedMethods[strings.ToUpper(m)]
}

// BuildRequest constructs the outbound HTTP request for a task. GET requests
// carry the payload in the query string (nested structures flattened with
// bracket notation); POST/PUT/PATCH carry it as a JSON body; other methods
// send no payload. Destination headers are applied first so the defaults for
// Content-Type and User-Agent never override caller-specified values.
func BuildRequest(ctx context.Context, t Task) (*http.Request, error) {
	method := strings.ToUpper(t.Method)
	if !allowedMethods[method] {
		return nil, fmt.Errorf("unsupported http method %q", t.Method)
	}

	target := t.URL
	var body *bytes.Reader
	switch method {
	case http.MethodGet:
		q := EncodeQuery(t.Payload)
		if q != "" {
			if strings.Contains(target, "?") {
				target += "&" + q
			} else {
				target += "?" + q
			}
		}
		body = bytes.NewReader(nil)
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		b, err := json.Marshal(t.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	default:
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", defaultContentType)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	return req, nil
}

// EncodeQuery flattens a payload into an URL-encoded query string using
// bracket notation: {"a":{"b":1},"c":[1,2]} -> a[b]=1&c[]=1&c[]=2.
// Keys are emitted in sorted order.
func EncodeQuery(payload map[string]any) string {
	pairs := flatten("", payload)
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].val < pairs[j].val
	})
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.val))
	}
	return b.String()
}

type queryPair struct {
	key string
	val string
}

func flatten(prefix string, v any) []queryPair {
	switch x := v.(type) {
	case map[string]any:
		var out []queryPair
		for k, sub := range x {
			key := k
			if prefix != "" {
				key = prefix + "[" + k + "]"
			}
			out = append(out, flatten(key, sub)...)
		}
		return out
	case []any:
		var out []queryPair
		for _, sub := range x {
			out = append(out, flatten(prefix+"[]", sub)...)
		}
		return out
	default:
		return []queryPair{{key: prefix, val: scalarString(v)}}
	}
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		// JSON numbers decode as float64; render integers without a decimal point
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Classify maps a dispatch result to an outcome. A transport error (doErr set)
// is always retryable; it covers timeouts, refused connections and DNS failures.
func Classify(doErr error, status int) Outcome {
	if doErr != nil {
		return OutcomeRetryable
	}
	switch {
	case status < 400:
		return OutcomeSuccess
	case status < 500:
		return OutcomePermanent
	default:
		return OutcomeRetryable
	}
}

// FailureReason labels a failed dispatch for metrics and the delivery log.
func FailureReason(doErr error, status int) string {
	if doErr != nil {
		errLower := strings.ToLower(doErr.Error())
		switch {
		case strings.Contains(errLower, "timeout"), strings.Contains(errLower, "deadline exceeded"):
			return "timeout"
		case strings.Contains(errLower, "connection refused"):
			return "connection_refused"
		case strings.Contains(errLower, "no such host"), strings.Contains(errLower, "dns"):
			return "dns_error"
		default:
			return "network"
		}
	}
	switch {
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	default:
		return "other"
	}
}

// StatusClass buckets an HTTP status for the latency histogram.
func StatusClass(doErr error, status int) string {
	if doErr != nil {
		return "error"
	}
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
