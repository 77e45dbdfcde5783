// Package resource manages exclusive resources shared across concurrently
// running workers: network ports, scratch directories, and named locks.
package resource

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Manager allocates and releases resources for a single test session.
// All state is process-lifetime only; nothing is persisted.
//
// Each resource class has its own lock so that, for example, a slow scratch
// directory creation never serializes port allocation.
type Manager struct {
	basePort    int
	scratchRoot string
	logger      *slog.Logger

	portMu    sync.Mutex
	allocated map[int]string // port -> owner

	dirMu       sync.Mutex
	scratchDirs map[string]string // owner -> path

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewManager creates a resource manager. Ports are handed out starting at
// basePort; scratch directories are created under scratchRoot.
func NewManager(basePort int, scratchRoot string, logger *slog.Logger) *Manager {
	return &Manager{
		basePort:    basePort,
		scratchRoot: scratchRoot,
		logger:      logger,
		allocated:   make(map[int]string),
		scratchDirs: make(map[string]string),
		locks:       make(map[string]*sync.Mutex),
	}
}

// AllocatePort returns the lowest port >= basePort not currently held by any
// owner. Concurrent callers never receive the same port.
func (m *Manager) AllocatePort(owner string) int {
	m.portMu.Lock()
	defer m.portMu.Unlock()

	port := m.basePort
	for {
		if _, taken := m.allocated[port]; !taken {
			break
		}
		port++
	}

	m.allocated[port] = owner
	return port
}

// ReleasePort frees a port for reuse. Releasing an unallocated port is a no-op.
func (m *Manager) ReleasePort(port int) {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	delete(m.allocated, port)
}

// AllocatedPorts returns the number of ports currently held.
func (m *Manager) AllocatedPorts() int {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	return len(m.allocated)
}

// CreateScratchDir lazily creates an isolated scratch directory for the owner.
// Repeated calls for the same owner return the same path.
func (m *Manager) CreateScratchDir(owner string) (string, error) {
	m.dirMu.Lock()
	defer m.dirMu.Unlock()

	if dir, ok := m.scratchDirs[owner]; ok {
		return dir, nil
	}

	dir := filepath.Join(m.scratchRoot, fmt.Sprintf("worker_%s", owner))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating scratch dir for %s: %w", owner, err)
	}

	m.scratchDirs[owner] = dir
	return dir, nil
}

// CleanupScratchDir empties and removes the owner's scratch directory.
// Individual file deletion failures are logged and skipped, never fatal.
func (m *Manager) CleanupScratchDir(owner string) {
	m.dirMu.Lock()
	defer m.dirMu.Unlock()

	dir, ok := m.scratchDirs[owner]
	if !ok {
		return
	}

	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				m.logger.Warn("scratch_delete_failed", "owner", owner, "path", path, "error", err)
			}
		}
	}

	if err := os.Remove(dir); err != nil {
		m.logger.Warn("scratch_remove_failed", "owner", owner, "dir", dir, "error", err)
	}
	delete(m.scratchDirs, owner)
}

// PurgeScratchDir empties the owner's scratch directory without removing it.
// Used for inter-test isolation cleanup on pooled workers. Returns the first
// deletion error encountered; remaining entries are still attempted.
func (m *Manager) PurgeScratchDir(owner string) error {
	m.dirMu.Lock()
	dir, ok := m.scratchDirs[owner]
	m.dirMu.Unlock()
	if !ok {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading scratch dir for %s: %w", owner, err)
	}

	var firstErr error
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			m.logger.Warn("scratch_delete_failed", "owner", owner, "path", path, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LockResource acquires the named lock, creating it on first use, and returns
// the release function. Callers hold the lock for the whole critical section:
//
//	unlock := m.LockResource("save_slot_0")
//	defer unlock()
func (m *Manager) LockResource(name string) func() {
	m.lockMu.Lock()
	lock, ok := m.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[name] = lock
	}
	m.lockMu.Unlock()

	lock.Lock()
	return lock.Unlock
}
