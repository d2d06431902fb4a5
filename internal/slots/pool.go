// Package slots manages the fixed pool of memory-resident model slots.
//
// All mutations funnel through one mutex: concurrent routing decisions that
// both want to evict must serialize here rather than race. Pin state is
// user intent and persists across restarts; occupancy does not.
package slots

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SlotCount is fixed for the lifetime of the process.
const SlotCount = 4

// HotSlot is the state of one slot. Slot numbers are stable identifiers in
// 1..SlotCount and are never reassigned.
type HotSlot struct {
	Number   int        `json:"number"`
	ModelID  string     `json:"model_id,omitempty"`
	Pinned   bool       `json:"pinned"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

// Occupied reports whether a model is loaded in the slot.
func (s HotSlot) Occupied() bool { return s.ModelID != "" }

// PinStore persists pin state. Satisfied by *prefs.Store.
type PinStore interface {
	SetSlotPinned(slot int, pinned bool) error
	PinnedSlots() (map[int]bool, error)
}

// Policy holds the user preferences that guard slot mutations.
type Policy struct {
	// AskBeforeUnpinning makes Remove fail on pinned slots so the caller
	// can confirm with the user first.
	AskBeforeUnpinning bool

	// ImmutableModels makes Assign refuse to overwrite an occupied slot.
	ImmutableModels bool
}

// Pool is the fixed-capacity resident-model pool.
type Pool struct {
	mu     sync.Mutex
	slots  [SlotCount]HotSlot
	store  PinStore
	policy Policy
	now    func() time.Time
}

// NewPool creates a pool with all slots empty, restoring persisted pin
// state from the store.
func NewPool(store PinStore, policy Policy) (*Pool, error) {
	p := &Pool{store: store, policy: policy, now: time.Now}
	for i := range p.slots {
		p.slots[i].Number = i + 1
	}
	if store != nil {
		pinned, err := store.PinnedSlots()
		if err != nil {
			return nil, err
		}
		for slot := range pinned {
			if idx, ok := p.index(slot); ok {
				p.slots[idx].Pinned = true
			}
		}
	}
	return p, nil
}

// SetPolicy updates the mutation-guard preferences.
func (p *Pool) SetPolicy(policy Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// Snapshot returns the current state of all slots.
func (p *Pool) Snapshot() []HotSlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]HotSlot, SlotCount)
	copy(out, p.slots[:])
	return out
}

// FindEvictionCandidate returns the occupied, unpinned slot with the oldest
// load timestamp, ties broken by lowest slot number. ok is false when every
// occupied slot is pinned, meaning the load cannot proceed automatically.
//
// A linear scan over four slots; nothing fancier is warranted.
func (p *Pool) FindEvictionCandidate() (slot int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evictionCandidateLocked()
}

func (p *Pool) evictionCandidateLocked() (int, bool) {
	best := -1
	for i := range p.slots {
		s := &p.slots[i]
		if !s.Occupied() || s.Pinned {
			continue
		}
		if best == -1 || loadedBefore(s, &p.slots[best]) {
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	return p.slots[best].Number, true
}

// loadedBefore orders by load time, then slot number. A missing timestamp
// sorts first (treated as oldest).
func loadedBefore(a, b *HotSlot) bool {
	switch {
	case a.LoadedAt == nil && b.LoadedAt == nil:
		return a.Number < b.Number
	case a.LoadedAt == nil:
		return true
	case b.LoadedAt == nil:
		return false
	case a.LoadedAt.Equal(*b.LoadedAt):
		return a.Number < b.Number
	default:
		return a.LoadedAt.Before(*b.LoadedAt)
	}
}

// Assign occupies a slot with a model, stamping the load time. Overwriting
// an occupant records no eviction; the caller must already have decided to
// evict. With immutable models enabled, overwriting fails instead.
func (p *Pool) Assign(modelID string, slot int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.index(slot)
	if !ok {
		return &InvalidSlotError{Slot: slot}
	}
	if p.policy.ImmutableModels && p.slots[idx].Occupied() && p.slots[idx].ModelID != modelID {
		return &SlotImmutableError{Slot: slot, ModelID: p.slots[idx].ModelID}
	}

	now := p.now()
	p.slots[idx].ModelID = modelID
	p.slots[idx].LoadedAt = &now
	log.Info().Str("model", modelID).Int("slot", slot).Msg("model assigned to hot slot")
	return nil
}

// Remove clears a slot. Removing from a pinned slot fails with
// SlotPinnedError while ask-before-unpinning is enabled; this is a
// user-safety guard, not a hard invariant. Use ForceRemove to override.
func (p *Pool) Remove(slot int) error {
	return p.remove(slot, false)
}

// ForceRemove clears a slot regardless of pin state.
func (p *Pool) ForceRemove(slot int) error {
	return p.remove(slot, true)
}

func (p *Pool) remove(slot int, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.index(slot)
	if !ok {
		return &InvalidSlotError{Slot: slot}
	}
	if !force && p.slots[idx].Pinned && p.policy.AskBeforeUnpinning {
		return &SlotPinnedError{Slot: slot, ModelID: p.slots[idx].ModelID}
	}

	evicted := p.slots[idx].ModelID
	p.slots[idx].ModelID = ""
	p.slots[idx].LoadedAt = nil
	if evicted != "" {
		log.Info().Str("model", evicted).Int("slot", slot).Bool("forced", force).Msg("model removed from hot slot")
	}
	return nil
}

// Pin protects a slot from automatic eviction. Persisted immediately.
func (p *Pool) Pin(slot int) error {
	return p.setPinned(slot, true)
}

// Unpin releases a slot for automatic eviction. Persisted immediately.
func (p *Pool) Unpin(slot int) error {
	return p.setPinned(slot, false)
}

func (p *Pool) setPinned(slot int, pinned bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.index(slot)
	if !ok {
		return &InvalidSlotError{Slot: slot}
	}
	if p.store != nil {
		if err := p.store.SetSlotPinned(slot, pinned); err != nil {
			return err
		}
	}
	p.slots[idx].Pinned = pinned
	log.Debug().Int("slot", slot).Bool("pinned", pinned).Msg("slot pin state changed")
	return nil
}

// HasAvailableSlot reports whether any slot is empty or unpinned.
func (p *Pool) HasAvailableSlot() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		if !p.slots[i].Occupied() || !p.slots[i].Pinned {
			return true
		}
	}
	return false
}

// OccupiedCount returns the number of slots holding a model.
func (p *Pool) OccupiedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for i := range p.slots {
		if p.slots[i].Occupied() {
			n++
		}
	}
	return n
}

// SlotOf returns the slot number holding the given model, if any.
func (p *Pool) SlotOf(modelID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		if p.slots[i].ModelID == modelID {
			return p.slots[i].Number, true
		}
	}
	return 0, false
}

func (p *Pool) index(slot int) (int, bool) {
	if slot < 1 || slot > SlotCount {
		return 0, false
	}
	return slot - 1, true
}
