package model

// DefectStatus is the lifecycle state of a report.
type DefectStatus string

const (
	StatusReported   DefectStatus = "reported"
	StatusValidated  DefectStatus = "validated"
	StatusInProgress DefectStatus = "in_progress"
	StatusResolved   DefectStatus = "resolved"
	StatusRejected   DefectStatus = "rejected"
)

// ValidStatuses are the accepted status values.
var ValidStatuses = map[DefectStatus]bool{
	StatusReported:   true,
	StatusValidated:  true,
	StatusInProgress: true,
	StatusResolved:   true,
	StatusRejected:   true,
}

// Terminal reports whether no further transition is possible.
func (s DefectStatus) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// rank orders the forward lifecycle; rejected sits outside it.
func (s DefectStatus) rank() int {
	switch s {
	case StatusReported:
		return 0
	case StatusValidated:
		return 1
	case StatusInProgress:
		return 2
	case StatusResolved:
		return 3
	default:
		return -1
	}
}

// adminTransitions lists the moves an administrator may force.
var adminTransitions = map[DefectStatus][]DefectStatus{
	StatusReported:   {StatusValidated, StatusRejected},
	StatusValidated:  {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusResolved, StatusRejected},
}

// CanTransition reports whether an administrative action may move a report
// from one status to another. A move must be listed and must not go
// backward along the lifecycle.
func CanTransition(from, to DefectStatus) bool {
	if Regresses(from, to) {
		return false
	}
	for _, next := range adminTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Regresses reports whether moving from one status to another goes backward
// along the lifecycle.
func Regresses(from, to DefectStatus) bool {
	if from.Terminal() {
		return from != to
	}
	if to == StatusRejected {
		return false
	}
	return to.rank() < from.rank()
}
