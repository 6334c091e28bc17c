package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		setup   func(*HTTPProbe)
		healthy bool
	}{
		{name: "ok", status: http.StatusOK, healthy: true},
		{name: "server error", status: http.StatusInternalServerError},
		{
			name:    "custom range accepts 201",
			status:  http.StatusCreated,
			setup:   func(p *HTTPProbe) { p.WithStatusRange(200, 299) },
			healthy: true,
		},
		{
			name:   "redirect outside custom range",
			status: http.StatusNoContent,
			setup:  func(p *HTTPProbe) { p.WithStatusRange(200, 200) },
		},
		{
			name:    "body match",
			status:  http.StatusOK,
			body:    `{"status":"pass"}`,
			setup:   func(p *HTTPProbe) { p.WithBodyContains(`"pass"`) },
			healthy: true,
		},
		{
			name:   "body mismatch",
			status: http.StatusOK,
			body:   `{"status":"fail"}`,
			setup:  func(p *HTTPProbe) { p.WithBodyContains(`"pass"`) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewHTTPProbe(server.URL)
			if tt.setup != nil {
				tt.setup(p)
			}

			result := p.Probe(context.Background())
			assert.Equal(t, tt.healthy, result.Healthy, result.Message)
			assert.Equal(t, tt.healthy, result.Err() == nil)
		})
	}
}

func TestHTTPProbeHeadersAndMethod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead || r.Header.Get("Authorization") != "Bearer t0ken" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := NewHTTPProbe(server.URL).
		WithMethod(http.MethodHead).
		WithHeader("Authorization", "Bearer t0ken").
		Probe(context.Background())
	assert.True(t, result.Healthy, result.Message)
}

func TestHTTPProbeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	result := NewHTTPProbe(server.URL).WithTimeout(20 * time.Millisecond).Probe(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "request failed")
}

func TestHTTPProbeInvalidURL(t *testing.T) {
	result := NewHTTPProbe("http://[::1").Probe(context.Background())
	assert.False(t, result.Healthy)
	assert.Equal(t, KindHTTP, NewHTTPProbe("x").Kind())
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	result := NewTCPProbe(ln.Addr().String()).Probe(context.Background())
	assert.True(t, result.Healthy, result.Message)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	result = NewTCPProbe(addr).WithTimeout(100 * time.Millisecond).Probe(context.Background())
	assert.False(t, result.Healthy)
	assert.Error(t, result.Err())
	assert.Equal(t, KindTCP, NewTCPProbe(addr).Kind())
}
