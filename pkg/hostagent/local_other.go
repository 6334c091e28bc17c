//go:build !unix

package hostagent

import (
	"context"

	apperrors "github.com/cuemby/burrow/pkg/errors"
)

// Local is unavailable on this platform; every call fails
type Local struct{}

// NewLocal creates a local agent
func NewLocal() *Local { return &Local{} }

func (l *Local) EnsureModuleIsInstalled(ctx context.Context, hostID uint64, module string) error {
	return apperrors.New(apperrors.CodeInternal, "local host agent is not supported on this platform")
}

func (l *Local) QueryFreeSpace(ctx context.Context, hostID uint64, path string) (uint64, error) {
	return 0, apperrors.New(apperrors.CodeInternal, "local host agent is not supported on this platform")
}
