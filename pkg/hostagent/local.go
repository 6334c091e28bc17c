//go:build unix

package hostagent

import (
	"context"
	"fmt"
	"os/exec"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Local serves every host from the machine the control plane runs on. It
// fits single-host installs: modules are executables on PATH and free space
// comes from statfs(2).
type Local struct {
	lookPath func(string) (string, error)
	logger   zerolog.Logger
}

// NewLocal creates a local agent
func NewLocal() *Local {
	return &Local{
		lookPath: exec.LookPath,
		logger:   log.WithComponent("hostagent"),
	}
}

// EnsureModuleIsInstalled checks that the module's executable is on PATH.
// Local installs cannot install packages themselves.
func (l *Local) EnsureModuleIsInstalled(ctx context.Context, hostID uint64, module string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.lookPath(module)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeNotFound,
			fmt.Sprintf("module %s is not installed on host %d", module, hostID))
	}
	logger := log.WithHostID(l.logger, hostID)
	logger.Debug().Str("module", module).Str("path", path).Msg("Module present")
	return nil
}

// QueryFreeSpace returns the bytes available to unprivileged users at path
func (l *Local) QueryFreeSpace(ctx context.Context, hostID uint64, path string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s on host %d: %w", path, hostID, err)
	}
	free := uint64(st.Bavail) * uint64(st.Bsize)
	logger := log.WithHostID(l.logger, hostID)
	logger.Debug().Str("path", path).Uint64("free_bytes", free).Msg("Free space queried")
	return free, nil
}
