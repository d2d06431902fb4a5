package routing

import "fmt"

// ModelNotAvailableError means routing could not produce a usable primary
// model. SafeFallbackModelID carries the configured last-resort model so a
// caller can still answer the user instead of surfacing a dead end.
type ModelNotAvailableError struct {
	Reason              string
	SafeFallbackModelID string
}

func (e *ModelNotAvailableError) Error() string {
	if e.SafeFallbackModelID != "" {
		return fmt.Sprintf("no model available (%s), safe fallback %s", e.Reason, e.SafeFallbackModelID)
	}
	return fmt.Sprintf("no model available (%s)", e.Reason)
}
