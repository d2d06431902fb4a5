package slots

import (
	"errors"
	"testing"
	"time"
)

// memStore is an in-memory PinStore for tests.
type memStore struct {
	pinned map[int]bool
	fail   error
	writes int
}

func newMemStore() *memStore {
	return &memStore{pinned: make(map[int]bool)}
}

func (m *memStore) SetSlotPinned(slot int, pinned bool) error {
	if m.fail != nil {
		return m.fail
	}
	m.writes++
	m.pinned[slot] = pinned
	return nil
}

func (m *memStore) PinnedSlots() (map[int]bool, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	out := make(map[int]bool)
	for k, v := range m.pinned {
		if v {
			out[k] = true
		}
	}
	return out, nil
}

// newTestPool returns a pool with a controllable clock.
func newTestPool(t *testing.T, store PinStore, policy Policy) (*Pool, *time.Time) {
	t.Helper()
	p, err := NewPool(store, policy)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	return p, &now
}

func TestNewPoolRestoresPins(t *testing.T) {
	store := newMemStore()
	store.pinned[2] = true
	store.pinned[4] = true

	p, _ := newTestPool(t, store, Policy{})

	snap := p.Snapshot()
	if !snap[1].Pinned || !snap[3].Pinned {
		t.Error("expected pins on slots 2 and 4 restored from store")
	}
	if snap[0].Pinned || snap[2].Pinned {
		t.Error("slots 1 and 3 should be unpinned")
	}
}

func TestAssignAndSlotOf(t *testing.T) {
	p, _ := newTestPool(t, newMemStore(), Policy{})

	if err := p.Assign("llama3.2:3b", 1); err != nil {
		t.Fatalf("assign: %v", err)
	}

	slot, ok := p.SlotOf("llama3.2:3b")
	if !ok || slot != 1 {
		t.Errorf("expected model in slot 1, got %d ok=%v", slot, ok)
	}
	if p.OccupiedCount() != 1 {
		t.Errorf("expected 1 occupied slot, got %d", p.OccupiedCount())
	}
}

func TestAssignInvalidSlot(t *testing.T) {
	p, _ := newTestPool(t, newMemStore(), Policy{})

	var invalid *InvalidSlotError
	if err := p.Assign("m", 0); !errors.As(err, &invalid) {
		t.Errorf("expected InvalidSlotError for slot 0, got %v", err)
	}
	if err := p.Assign("m", 5); !errors.As(err, &invalid) {
		t.Errorf("expected InvalidSlotError for slot 5, got %v", err)
	}
}

func TestImmutableModelsBlocksOverwrite(t *testing.T) {
	p, _ := newTestPool(t, newMemStore(), Policy{ImmutableModels: true})

	if err := p.Assign("first", 1); err != nil {
		t.Fatalf("assign: %v", err)
	}

	var immutable *SlotImmutableError
	err := p.Assign("second", 1)
	if !errors.As(err, &immutable) {
		t.Fatalf("expected SlotImmutableError, got %v", err)
	}
	if immutable.ModelID != "first" {
		t.Errorf("error should name the occupant, got %s", immutable.ModelID)
	}

	// Re-assigning the same model is not an overwrite.
	if err := p.Assign("first", 1); err != nil {
		t.Errorf("same-model reassign should succeed: %v", err)
	}
}

func TestFindEvictionCandidateOldestFirst(t *testing.T) {
	p, now := newTestPool(t, newMemStore(), Policy{})

	p.Assign("m1", 1)
	*now = now.Add(time.Minute)
	p.Assign("m2", 2)
	*now = now.Add(time.Minute)
	p.Assign("m3", 3)

	slot, ok := p.FindEvictionCandidate()
	if !ok || slot != 1 {
		t.Errorf("expected oldest slot 1, got %d ok=%v", slot, ok)
	}
}

func TestFindEvictionCandidateSkipsPinned(t *testing.T) {
	p, now := newTestPool(t, newMemStore(), Policy{})

	p.Assign("m1", 1)
	*now = now.Add(time.Minute)
	p.Assign("m2", 2)
	p.Pin(1)

	slot, ok := p.FindEvictionCandidate()
	if !ok || slot != 2 {
		t.Errorf("expected slot 2 (slot 1 pinned), got %d ok=%v", slot, ok)
	}
}

func TestFindEvictionCandidateAllPinned(t *testing.T) {
	p, _ := newTestPool(t, newMemStore(), Policy{})

	for i := 1; i <= SlotCount; i++ {
		p.Assign("m", i)
		p.Pin(i)
	}

	if _, ok := p.FindEvictionCandidate(); ok {
		t.Error("expected no candidate when every occupied slot is pinned")
	}
	if p.HasAvailableSlot() {
		t.Error("expected no available slot")
	}
}

func TestFindEvictionCandidateTieBreaksByNumber(t *testing.T) {
	p, _ := newTestPool(t, newMemStore(), Policy{})

	// Same clock reading for all assigns.
	p.Assign("m3", 3)
	p.Assign("m2", 2)
	p.Assign("m4", 4)

	slot, ok := p.FindEvictionCandidate()
	if !ok || slot != 2 {
		t.Errorf("expected lowest slot number 2 on timestamp tie, got %d", slot)
	}
}

func TestFindEvictionCandidateIgnoresEmpty(t *testing.T) {
	p, _ := newTestPool(t, newMemStore(), Policy{})

	if _, ok := p.FindEvictionCandidate(); ok {
		t.Error("empty pool has no eviction candidate")
	}
}

func TestRemovePinnedGuard(t *testing.T) {
	p, _ := newTestPool(t, newMemStore(), Policy{AskBeforeUnpinning: true})

	p.Assign("m1", 1)
	p.Pin(1)

	var pinned *SlotPinnedError
	err := p.Remove(1)
	if !errors.As(err, &pinned) {
		t.Fatalf("expected SlotPinnedError, got %v", err)
	}
	if pinned.Slot != 1 || pinned.ModelID != "m1" {
		t.Errorf("error should carry slot and model, got %+v", pinned)
	}

	if err := p.ForceRemove(1); err != nil {
		t.Errorf("force remove should bypass the guard: %v", err)
	}
	if p.OccupiedCount() != 0 {
		t.Error("slot should be empty after force remove")
	}
}

func TestRemovePinnedAllowedWhenGuardOff(t *testing.T) {
	p, _ := newTestPool(t, newMemStore(), Policy{AskBeforeUnpinning: false})

	p.Assign("m1", 1)
	p.Pin(1)

	if err := p.Remove(1); err != nil {
		t.Errorf("remove should succeed with guard disabled: %v", err)
	}
}

func TestPinPersistsBeforeMutating(t *testing.T) {
	store := newMemStore()
	p, _ := newTestPool(t, store, Policy{})

	if err := p.Pin(3); err != nil {
		t.Fatalf("pin: %v", err)
	}
	if !store.pinned[3] {
		t.Error("pin state not persisted")
	}

	store.fail = errors.New("disk full")
	if err := p.Pin(4); err == nil {
		t.Fatal("expected pin to fail when the store fails")
	}
	if p.Snapshot()[3].Pinned {
		t.Error("in-memory pin state must not change when persistence fails")
	}
}

func TestPinIdempotent(t *testing.T) {
	store := newMemStore()
	p, _ := newTestPool(t, store, Policy{})

	p.Pin(1)
	p.Pin(1)
	p.Unpin(1)
	p.Unpin(1)

	if p.Snapshot()[0].Pinned {
		t.Error("slot should end unpinned")
	}
	if store.writes != 4 {
		t.Errorf("every toggle writes through, expected 4 writes, got %d", store.writes)
	}
}

func TestPinSurvivesReopen(t *testing.T) {
	store := newMemStore()
	p1, _ := newTestPool(t, store, Policy{})
	p1.Pin(2)

	p2, _ := newTestPool(t, store, Policy{})
	if !p2.Snapshot()[1].Pinned {
		t.Error("pin should survive a pool restart via the store")
	}
}

func TestPoolWithNilStore(t *testing.T) {
	p, _ := newTestPool(t, nil, Policy{})

	if err := p.Pin(1); err != nil {
		t.Errorf("pin without a store should still work in memory: %v", err)
	}
	if !p.Snapshot()[0].Pinned {
		t.Error("expected in-memory pin")
	}
}

func TestHasAvailableSlot(t *testing.T) {
	p, _ := newTestPool(t, newMemStore(), Policy{})

	if !p.HasAvailableSlot() {
		t.Error("empty pool has available slots")
	}

	for i := 1; i <= SlotCount; i++ {
		p.Assign("m", i)
	}
	if !p.HasAvailableSlot() {
		t.Error("full but unpinned pool still has an evictable slot")
	}

	for i := 1; i <= SlotCount; i++ {
		p.Pin(i)
	}
	if p.HasAvailableSlot() {
		t.Error("full and fully pinned pool has no available slot")
	}
}
