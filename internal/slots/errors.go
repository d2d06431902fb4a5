package slots

import "fmt"

// SlotPinnedError is returned when a removal is attempted against a pinned
// slot while the ask-before-unpinning preference is enabled. The caller is
// expected to confirm with the user and retry via ForceRemove.
type SlotPinnedError struct {
	Slot    int
	ModelID string
}

func (e *SlotPinnedError) Error() string {
	return fmt.Sprintf("slot %d is pinned (holding %s); unpin it or force removal", e.Slot, e.ModelID)
}

// SlotImmutableError is returned when an occupied slot would be overwritten
// while the immutable-models preference is enabled.
type SlotImmutableError struct {
	Slot    int
	ModelID string
}

func (e *SlotImmutableError) Error() string {
	return fmt.Sprintf("slot %d holds %s and models are marked immutable", e.Slot, e.ModelID)
}

// InvalidSlotError is returned for slot numbers outside 1..SlotCount.
type InvalidSlotError struct {
	Slot int
}

func (e *InvalidSlotError) Error() string {
	return fmt.Sprintf("slot %d out of range 1..%d", e.Slot, SlotCount)
}
