package tablesession

// checkMutable gates assignment edits and leaving.
func checkMutable(s Status) error {
	switch s {
	case StatusOpen:
		return nil
	case StatusLocked:
		return ErrSessionLocked
	default:
		return ErrAlreadyClosed
	}
}

func checkJoinable(s Status) error {
	if s == StatusClosed {
		return ErrAlreadyClosed
	}
	return nil
}

func lockTransition(s Status) (Status, error) {
	switch s {
	case StatusOpen:
		return StatusLocked, nil
	case StatusLocked:
		return s, ErrSessionLocked
	default:
		return s, ErrAlreadyClosed
	}
}

// unlockTransition may be requested by any participant, not only the locker.
func unlockTransition(s Status) (Status, error) {
	switch s {
	case StatusLocked:
		return StatusOpen, nil
	case StatusOpen:
		return s, ErrNotLocked
	default:
		return s, ErrAlreadyClosed
	}
}

// finalizeTransition returns noop=true when the session is already closed.
func finalizeTransition(s Status, last *Validation) (next Status, noop bool, err error) {
	switch s {
	case StatusClosed:
		return s, true, nil
	case StatusOpen:
		return s, false, ErrNotLocked
	}
	if last == nil || !last.AllAssigned {
		return s, false, ErrNotValidated
	}
	return StatusClosed, false, nil
}
