// Package lock provides the striped per-key locks guarding cache writes and
// a flock-based lock ensuring a single watcher per workspace.
package lock

import (
	"fmt"
	"hash/fnv"
	"os"
	"sync"
	"syscall"
)

const stripeCount = 64

// StripedMutex maps string keys onto a fixed set of mutexes. Two nodes only
// contend on the same stripe when their fingerprints collide, which keeps
// cache writes parallel without a per-key map growing unboundedly.
type StripedMutex struct {
	stripes [stripeCount]sync.Mutex
}

func NewStripedMutex() *StripedMutex {
	return &StripedMutex{}
}

func (m *StripedMutex) Lock(key string) {
	m.stripe(key).Lock()
}

func (m *StripedMutex) Unlock(key string) {
	m.stripe(key).Unlock()
}

func (m *StripedMutex) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.stripes[h.Sum32()%stripeCount]
}

// FileLock is an exclusive advisory lock on a path, used to prevent two
// watch-mode processes from running against the same workspace.
type FileLock struct {
	path string
	file *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (fl *FileLock) TryLock() error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("acquire lock (another monoflow watch may be running): %w", err)
	}

	if err := f.Truncate(0); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return fmt.Errorf("write PID to lock file: %w", err)
	}

	fl.file = f
	return nil
}

func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		fl.file.Close()
		return fmt.Errorf("release lock: %w", err)
	}
	if err := fl.file.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}

	os.Remove(fl.path)
	fl.file = nil
	return nil
}
