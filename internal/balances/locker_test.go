package balances

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedMutexSerialisesSameName(t *testing.T) {
	m := NewKeyedMutex()
	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(context.Background(), "balance:a")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxInside)
	}
	if len(m.slots) != 0 {
		t.Fatalf("expected slots to be dropped, got %d", len(m.slots))
	}
}

func TestKeyedMutexDistinctNamesDoNotBlock(t *testing.T) {
	m := NewKeyedMutex()
	releaseA, err := m.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := m.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	releaseB()
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	m := NewKeyedMutex()
	release, err := m.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	release()
	release()

	again, err := m.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	again()
}

func TestKeyedMutexCancelledBeforeAcquire(t *testing.T) {
	m := NewKeyedMutex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Acquire(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

type recordingLocker struct {
	name string
	log  *[]string
	err  error
}

func (r recordingLocker) Acquire(_ context.Context, name string) (func(), error) {
	if r.err != nil {
		return nil, r.err
	}
	*r.log = append(*r.log, "acquire:"+r.name)
	return func() { *r.log = append(*r.log, "release:"+r.name) }, nil
}

func TestChainReleasesInReverse(t *testing.T) {
	var log []string
	chain := Chain{recordingLocker{name: "local", log: &log}, recordingLocker{name: "redis", log: &log}}
	release, err := chain.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	want := []string{"acquire:local", "acquire:redis", "release:redis", "release:local"}
	if len(log) != len(want) {
		t.Fatalf("unexpected log %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("step %d: want %s got %s", i, want[i], log[i])
		}
	}
}

func TestChainReleasesHeldLocksOnFailure(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	chain := Chain{recordingLocker{name: "local", log: &log}, recordingLocker{name: "redis", log: &log, err: boom}}
	if _, err := chain.Acquire(context.Background(), "k"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(log) != 2 || log[1] != "release:local" {
		t.Fatalf("expected local lock released, got %v", log)
	}
}
