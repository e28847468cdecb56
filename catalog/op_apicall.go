package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentforge/flowengine/flowerr"
)

const defaultTimeoutMs = 30000

// HTTPDoer is the minimal surface ApiCall needs from an HTTP client,
// allowing tests to substitute a fake transport without standing up a
// server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var httpClient HTTPDoer = &http.Client{}

// SetHTTPClient overrides the client ApiCall uses, for host wiring and
// tests (e.g. substituting a traced client per SPEC_FULL.md's httpcatalog
// component).
func SetHTTPClient(c HTTPDoer) { httpClient = c }

func apiCallDescriptor() *Descriptor {
	return &Descriptor{
		Kind:           KindApiCall,
		RequiredFields: []string{"method", "url", "outputPath"},
		OptionalFields: []string{"headers", "body", "timeoutMs"},
		Retryable:      true,
		OutputType:     OutputAny,
		CacheableFunc: func(args map[string]any) bool {
			method, _ := args["method"].(string)
			if !strings.EqualFold(method, "GET") {
				return false
			}
			if body, ok := args["body"]; ok {
				if containsCredentialRef(body) {
					return false
				}
			}
			return true
		},
		Execute: executeAPICall,
	}
}

// containsCredentialRef reports whether v (already concrete, pre-resolve)
// contains a {credentialRef:...} literal anywhere. It is only meaningful
// before credential resolution; the executor calls CacheableFunc on the
// concrete-but-not-yet-credential-resolved args view.
func containsCredentialRef(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		if _, ok := t["credentialRef"]; ok && len(t) == 1 {
			return true
		}
		for _, val := range t {
			if containsCredentialRef(val) {
				return true
			}
		}
	case []any:
		for _, val := range t {
			if containsCredentialRef(val) {
				return true
			}
		}
	}
	return false
}

func executeAPICall(ec *ExecContext) (any, error) {
	method, _ := ec.Args["method"].(string)
	url, _ := ec.Args["url"].(string)

	timeoutMs := defaultTimeoutMs
	if v, ok := ec.Args["timeoutMs"]; ok {
		if f, ok := v.(float64); ok {
			timeoutMs = int(f)
		}
	}

	var bodyReader io.Reader
	if body, ok := ec.Args["body"]; ok && body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "failed to encode request body").WithOperation(ec.OperationID)
		}
		bodyReader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ec.Ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, bodyReader)
	if err != nil {
		return nil, flowerr.New("NetworkError", flowerr.CategoryNetwork, flowerr.ErrNetwork, "failed to build request").WithOperation(ec.OperationID)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := ec.Args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, flowerr.New("TimeoutError", flowerr.CategoryNetwork, flowerr.ErrTimeout, fmt.Sprintf("request timed out after %dms", timeoutMs)).WithOperation(ec.OperationID).WithRecoverable(true)
		}
		if ec.Ctx.Err() != nil {
			return nil, flowerr.New("CancellationError", flowerr.CategoryCancelled, flowerr.ErrCancelled, "request cancelled").WithOperation(ec.OperationID)
		}
		var dnsErr *net.DNSError
		kind := "connection failed"
		if errors.As(err, &dnsErr) {
			kind = "dns lookup failed"
		}
		return nil, flowerr.New("NetworkError", flowerr.CategoryNetwork, flowerr.ErrNetwork, kind).WithOperation(ec.OperationID).WithRecoverable(true).WithContext(map[string]any{"host": req.URL.Host})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, flowerr.New("NetworkError", flowerr.CategoryNetwork, flowerr.ErrNetwork, "failed reading response body").WithOperation(ec.OperationID).WithRecoverable(true)
	}

	result := map[string]any{
		"statusCode": resp.StatusCode,
		"headers":    flattenHeaders(resp.Header),
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "json") {
		var parsed any
		if err := json.Unmarshal(data, &parsed); err == nil {
			result["body"] = parsed
		} else {
			result["body"] = string(data)
		}
	} else {
		result["body"] = string(data)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryAfter := resp.Header.Get("Retry-After")
		msg := fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
		return result, flowerr.NewApiError(resp.StatusCode, retryAfter, msg).WithOperation(ec.OperationID)
	}

	return result, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = strings.Join(v, ", ")
		}
	}
	return out
}

// RetryAfterDuration parses an HTTP Retry-After header value, which may be
// either a number of seconds or an HTTP-date; only the seconds form is
// supported here since that is what the spec's retry example (spec.md §8
// scenario 4/5) exercises. Returns (0, false) if unparseable.
func RetryAfterDuration(raw string) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}
