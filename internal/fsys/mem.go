package fsys

import (
	"fmt"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

const memTempDir = "/tmp"

// RlimitCall is one recorded MemFilesystem.Rlimit call.
type RlimitCall struct {
	Resource   int
	Soft, Hard uint64
}

// MemFilesystem keeps files in memory and records rlimit requests instead of
// applying them. Safe for concurrent use.
type MemFilesystem struct {
	fs billy.Filesystem

	mu     sync.Mutex
	rlimit []RlimitCall

	// RlimitErr, when set, is returned by every Rlimit call.
	RlimitErr error
}

// NewMemFilesystem creates an empty in-memory filesystem.
func NewMemFilesystem() *MemFilesystem {
	return &MemFilesystem{fs: memfs.New()}
}

func (m *MemFilesystem) Write(name string, contents []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return util.WriteFile(m.fs, name, contents, 0o644)
}

func (m *MemFilesystem) Read(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return util.ReadFile(m.fs, name)
}

func (m *MemFilesystem) TempFile() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.fs.TempFile(memTempDir, "forge-")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	return name, nil
}

func (m *MemFilesystem) Rlimit(resource int, soft, hard uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rlimit = append(m.rlimit, RlimitCall{Resource: resource, Soft: soft, Hard: hard})
	return m.RlimitErr
}

func (m *MemFilesystem) Unlink(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fs.Remove(name)
}

// Exists reports whether name is present.
func (m *MemFilesystem) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.fs.Stat(name)
	return err == nil
}

// TempFiles lists the scratch files currently present.
func (m *MemFilesystem) TempFiles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos, err := m.fs.ReadDir(memTempDir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, m.fs.Join(memTempDir, fi.Name()))
	}
	return names
}

// RlimitCalls returns the recorded rlimit requests.
func (m *MemFilesystem) RlimitCalls() []RlimitCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RlimitCall(nil), m.rlimit...)
}
