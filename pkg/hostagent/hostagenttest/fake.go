// Package hostagenttest provides an in-memory host agent for tests.
package hostagenttest

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory hostagent.Agent. Free space is looked up by
// "<hostID>:<path>"; unknown paths report zero bytes.
type Fake struct {
	mu        sync.Mutex
	free      map[string]uint64
	failing   map[string]error
	installed map[string]int

	// Block, when set, is received from before each module install returns
	Block chan struct{}
}

// NewFake creates an empty fake agent
func NewFake() *Fake {
	return &Fake{
		free:      make(map[string]uint64),
		failing:   make(map[string]error),
		installed: make(map[string]int),
	}
}

// SetFreeSpace sets the free bytes reported for path on host
func (f *Fake) SetFreeSpace(hostID uint64, path string, bytes uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.free[fmt.Sprintf("%d:%s", hostID, path)] = bytes
}

// FailModule makes installs of module fail with err
func (f *Fake) FailModule(module string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[module] = err
}

// Installs returns how many times module was installed on host
func (f *Fake) Installs(hostID uint64, module string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed[fmt.Sprintf("%d:%s", hostID, module)]
}

func (f *Fake) EnsureModuleIsInstalled(ctx context.Context, hostID uint64, module string) error {
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing[module]; err != nil {
		return err
	}
	f.installed[fmt.Sprintf("%d:%s", hostID, module)]++
	return nil
}

func (f *Fake) QueryFreeSpace(ctx context.Context, hostID uint64, path string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.free[fmt.Sprintf("%d:%s", hostID, path)], nil
}
