package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxBodyBytes bounds how much of a response is searched for BodyContains
const maxBodyBytes = 64 << 10

// HTTPProbe checks an HTTP endpoint
type HTTPProbe struct {
	// URL is the full URL to request (e.g., "https://10.0.4.7:8443/healthz")
	URL string

	// Method is the HTTP method to use (default: GET)
	Method string

	// Headers are added to every request
	Headers map[string]string

	// ExpectedStatusMin and ExpectedStatusMax bound the accepted status codes (default: 200-399)
	ExpectedStatusMin int
	ExpectedStatusMax int

	// BodyContains, when set, must appear in the response body
	BodyContains string

	// Client is the HTTP client to use
	Client *http.Client
}

// NewHTTPProbe creates an HTTP probe with default settings
func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{
		URL:               url,
		Method:            http.MethodGet,
		Headers:           make(map[string]string),
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 399,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Probe performs the HTTP request
func (h *HTTPProbe) Probe(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, h.Method, h.URL, nil)
	if err != nil {
		return failed(start, fmt.Sprintf("failed to create request: %v", err))
	}
	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return failed(start, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if resp.StatusCode < h.ExpectedStatusMin || resp.StatusCode > h.ExpectedStatusMax {
		return failed(start, fmt.Sprintf("%s (expected %d-%d)", message, h.ExpectedStatusMin, h.ExpectedStatusMax))
	}

	if h.BodyContains != "" {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return failed(start, fmt.Sprintf("failed to read body: %v", err))
		}
		if !strings.Contains(string(body), h.BodyContains) {
			return failed(start, fmt.Sprintf("%s (body does not contain %q)", message, h.BodyContains))
		}
	}

	return Result{
		Healthy:   true,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Kind returns KindHTTP
func (h *HTTPProbe) Kind() Kind {
	return KindHTTP
}

// WithMethod sets the HTTP method
func (h *HTTPProbe) WithMethod(method string) *HTTPProbe {
	h.Method = method
	return h
}

// WithHeader adds a request header
func (h *HTTPProbe) WithHeader(key, value string) *HTTPProbe {
	h.Headers[key] = value
	return h
}

// WithStatusRange sets the accepted status code range
func (h *HTTPProbe) WithStatusRange(min, max int) *HTTPProbe {
	h.ExpectedStatusMin = min
	h.ExpectedStatusMax = max
	return h
}

// WithBodyContains requires the response body to contain s
func (h *HTTPProbe) WithBodyContains(s string) *HTTPProbe {
	h.BodyContains = s
	return h
}

// WithTimeout sets the HTTP client timeout
func (h *HTTPProbe) WithTimeout(timeout time.Duration) *HTTPProbe {
	h.Client.Timeout = timeout
	return h
}
