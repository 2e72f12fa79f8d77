package delivery

// Status is the lifecycle state of one (event, destination) delivery attempt.
// It only ever advances: pending -> processing -> {success, failed}.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal forward step.
// Re-applying the current state is allowed so that redelivered jobs are no-ops:
// a worker that crashed after dispatch may mark processing again, and a
// terminal status written twice stays put.
func (s Status) CanTransition(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return s != StatusPending // re-entering pending would be a regression
	}
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusSuccess || next == StatusFailed
	}
	return false
}
