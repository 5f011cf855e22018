package turn

import (
	"errors"
	"sync"
	"testing"
)

func TestChannelSlots_AcquireRelease(t *testing.T) {
	t.Parallel()
	slots := NewChannelSlots()

	slot, err := slots.Acquire("g1", "c1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !slots.Held("g1", "c1") {
		t.Error("expected slot to be held after Acquire")
	}

	if _, err := slots.Acquire("g1", "c1"); !errors.Is(err, ErrChannelBusy) {
		t.Fatalf("second Acquire error = %v; want ErrChannelBusy", err)
	}

	slot.Release()
	if slots.Held("g1", "c1") {
		t.Error("expected slot free after Release")
	}
	if _, err := slots.Acquire("g1", "c1"); err != nil {
		t.Fatalf("Acquire after Release error = %v", err)
	}
}

func TestChannelSlots_IndependentChannels(t *testing.T) {
	t.Parallel()
	slots := NewChannelSlots()

	if _, err := slots.Acquire("g1", "c1"); err != nil {
		t.Fatalf("Acquire(c1) error = %v", err)
	}
	if _, err := slots.Acquire("g1", "c2"); err != nil {
		t.Errorf("Acquire(c2) error = %v; channels must not share slots", err)
	}
	if _, err := slots.Acquire("g2", "c1"); err != nil {
		t.Errorf("Acquire(g2/c1) error = %v; guilds must not share slots", err)
	}
}

func TestChannelSlots_ReleaseIdempotent(t *testing.T) {
	t.Parallel()
	slots := NewChannelSlots()

	slot, err := slots.Acquire("g1", "c1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	slot.Release()

	// A later holder must not be evicted by a stale double release.
	if _, err := slots.Acquire("g1", "c1"); err != nil {
		t.Fatalf("re-Acquire error = %v", err)
	}
	slot.Release()
	if !slots.Held("g1", "c1") {
		t.Error("stale Release freed a slot held by another turn")
	}
}

func TestChannelSlots_ConcurrentAcquire(t *testing.T) {
	t.Parallel()
	slots := NewChannelSlots()

	const attempts = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := slots.Acquire("g1", "c1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("got %d successful acquires; want exactly 1", wins)
	}
}
