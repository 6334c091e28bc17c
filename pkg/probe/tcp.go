package probe

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPProbe checks that a TCP address accepts connections
type TCPProbe struct {
	// Address is host:port to connect to (e.g., "10.0.4.7:53")
	Address string

	// Timeout is the connection timeout (default: 5 seconds)
	Timeout time.Duration
}

// NewTCPProbe creates a TCP probe
func NewTCPProbe(address string) *TCPProbe {
	return &TCPProbe{
		Address: address,
		Timeout: 5 * time.Second,
	}
}

// Probe dials the address once
func (t *TCPProbe) Probe(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return failed(start, fmt.Sprintf("connection failed: %v", err))
	}
	defer conn.Close()

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("TCP connection to %s successful", t.Address),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Kind returns KindTCP
func (t *TCPProbe) Kind() Kind {
	return KindTCP
}

// WithTimeout sets the connection timeout
func (t *TCPProbe) WithTimeout(timeout time.Duration) *TCPProbe {
	t.Timeout = timeout
	return t
}
