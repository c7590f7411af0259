package lock

import (
	"path/filepath"
	"sync"
	"testing"
)

func TestStripedMutex_Exclusion(t *testing.T) {
	m := NewStripedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("same-key")
			counter++
			m.Unlock("same-key")
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("expected 50 increments, got %d", counter)
	}
}

func TestFileLock_SecondAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.lock")

	fl1 := NewFileLock(path)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer fl1.Unlock()

	fl2 := NewFileLock(path)
	if err := fl2.TryLock(); err == nil {
		fl2.Unlock()
		t.Fatal("expected second lock to fail")
	}
}

func TestFileLock_ReacquireAfterUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.lock")

	fl := NewFileLock(path)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := fl.TryLock(); err != nil {
		t.Fatalf("relock: %v", err)
	}
	fl.Unlock()
}
