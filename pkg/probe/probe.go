// Package probe implements network probes used by the built-in endpoint
// provider to check monitored services.
package probe

import (
	"context"
	"errors"
	"time"
)

// Kind identifies how a probe reaches its target
type Kind string

const (
	KindHTTP Kind = "http"
	KindTCP  Kind = "tcp"
)

// Result represents the outcome of a probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Err returns nil for a healthy result and the probe message otherwise
func (r Result) Err() error {
	if r.Healthy {
		return nil
	}
	return errors.New(r.Message)
}

// Prober is implemented by every probe
type Prober interface {
	// Probe performs one check against the target
	Probe(ctx context.Context) Result

	// Kind returns the probe kind
	Kind() Kind
}

func failed(start time.Time, message string) Result {
	return Result{
		Healthy:   false,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
