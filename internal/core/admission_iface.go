package core

import "time"

// Decision is the admission-control verdict for one gameplay action.
type Decision struct {
	Allowed bool
	ResetAt time.Time
}

// Admission is the external rate-limiting collaborator, consulted once per
// gameplay action before anything touches the broker.
type Admission interface {
	TryAcquire(key string) Decision
}
