package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
)

func TestLockManager_TryAcquire(t *testing.T) {
	locks := NewLockManager(t.TempDir())

	release, ok, err := locks.TryAcquire("key")
	if err != nil || !ok {
		t.Fatalf("TryAcquire() = %v, %v; want true, nil", ok, err)
	}

	if _, ok, err := locks.TryAcquire("key"); err != nil || ok {
		t.Errorf("TryAcquire() on held key = %v, %v; want false, nil", ok, err)
	}

	other, ok, err := locks.TryAcquire("other")
	if err != nil || !ok {
		t.Errorf("TryAcquire() on other key = %v, %v; want true, nil", ok, err)
	}
	other()

	release()
	release() // idempotent

	again, ok, err := locks.TryAcquire("key")
	if err != nil || !ok {
		t.Errorf("TryAcquire() after release = %v, %v; want true, nil", ok, err)
	}
	again()
}

func TestLockManager_SeparateManagersShareLockFile(t *testing.T) {
	dir := t.TempDir()
	a := NewLockManager(dir)
	b := NewLockManager(dir)

	release, err := a.Acquire(context.Background(), "key")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if _, ok, err := b.TryAcquire("key"); err != nil || ok {
		t.Errorf("TryAcquire() from second manager = %v, %v; want false, nil", ok, err)
	}

	release()

	releaseB, ok, err := b.TryAcquire("key")
	if err != nil || !ok {
		t.Fatalf("TryAcquire() after release = %v, %v; want true, nil", ok, err)
	}
	releaseB()
}

func TestLockManager_AcquireSerializes(t *testing.T) {
	locks := NewLockManager(t.TempDir())

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			release, err := locks.Acquire(context.Background(), "key")
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer release()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
}

func TestLockManager_AcquireHonorsContext(t *testing.T) {
	locks := NewLockManager(t.TempDir())

	release, err := locks.Acquire(context.Background(), "key")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := locks.Acquire(ctx, "key"); err == nil {
		t.Fatalf("Acquire() expected error on cancelled context")
	} else if errors.GetCode(err) != gitwire.CodeLock {
		t.Errorf("Acquire() code = %s, want %s", errors.GetCode(err), gitwire.CodeLock)
	}
}
