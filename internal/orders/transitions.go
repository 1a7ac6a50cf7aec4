package orders

// transitions is the complete set of legal (from, to) pairs.
// cancelled, refunded and completed are terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusRefunded},
	StatusProcessing: {StatusShipped, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusRefunded},
	StatusDelivered:  {StatusCompleted, StatusRefunded},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// ParseStatus validates a wire value.
func ParseStatus(v string) (Status, bool) {
	switch s := Status(v); s {
	case StatusPending, StatusPaid, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCompleted, StatusCancelled, StatusRefunded:
		return s, true
	}
	return "", false
}

// timestampAttr names the attribute that records entry into s.
func timestampAttr(s Status) string {
	return string(s) + "_at"
}
