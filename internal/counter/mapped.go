//go:build unix

package counter

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const mappedSize = 8

// Mapped is a Counter backed by a shared memory-mapped file.
type Mapped struct {
	path string

	mu   sync.RWMutex
	file *os.File
	data []byte
	ptr  *int64
}

// CreateMapped creates (or truncates) the counter file at path and zeroes it.
func CreateMapped(path string) (*Mapped, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create counter file: %w", err)
	}
	return mapFile(path, f)
}

// OpenMapped maps an existing counter file created by CreateMapped.
func OpenMapped(path string) (*Mapped, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open counter file: %w", err)
	}
	return mapFile(path, f)
}

func mapFile(path string, f *os.File) (*Mapped, error) {
	if err := f.Truncate(mappedSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("size counter file: %w", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, mappedSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap counter file: %w", err)
	}

	return &Mapped{
		path: path,
		file: f,
		data: data,
		// mmap returns page-aligned memory, so the first word is 8-byte aligned.
		ptr: (*int64)(unsafe.Pointer(&data[0])),
	}, nil
}

// Path returns the backing file path.
func (m *Mapped) Path() string {
	return m.path
}

func (m *Mapped) Inc(ctx context.Context) (int64, error) {
	return m.add(1)
}

func (m *Mapped) Dec(ctx context.Context) (int64, error) {
	return m.add(-1)
}

func (m *Mapped) Load(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ptr == nil {
		return 0, ErrClosed
	}
	return atomic.LoadInt64(m.ptr), nil
}

func (m *Mapped) add(delta int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ptr == nil {
		return 0, ErrClosed
	}
	return atomic.AddInt64(m.ptr, delta), nil
}

// Close unmaps the file and closes the descriptor.
func (m *Mapped) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ptr == nil {
		return nil
	}
	m.ptr = nil

	err := unix.Munmap(m.data)
	m.data = nil
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}
