package authclient

// authStateMachine holds the allowed status graph. Moving to the same status
// is always allowed so repeated events stay idempotent.
type authStateMachine struct {
	transitions map[AuthStatus]map[AuthStatus]struct{}
}

func newAuthStateMachine() *authStateMachine {
	return &authStateMachine{
		transitions: map[AuthStatus]map[AuthStatus]struct{}{
			StatusUnknown: {
				StatusLoading:       {},
				StatusAuthenticated: {},
				StatusAnonymous:     {},
			},
			StatusLoading: {
				StatusAuthenticated: {},
				StatusAnonymous:     {},
				StatusErrored:       {},
			},
			StatusAuthenticated: {
				StatusLoading:   {},
				StatusAnonymous: {},
			},
			StatusAnonymous: {
				StatusLoading:       {},
				StatusAuthenticated: {},
			},
			StatusErrored: {
				StatusLoading:       {},
				StatusAuthenticated: {},
				StatusAnonymous:     {},
			},
		},
	}
}

// CanTransition reports whether the session store accepts a move from one
// status to another.
func CanTransition(from, to AuthStatus) bool {
	return defaultStateMachine.canTransition(from, to)
}

var defaultStateMachine = newAuthStateMachine()

func (sm *authStateMachine) canTransition(from, to AuthStatus) bool {
	if from == to {
		return true
	}
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *authStateMachine) validate(from, to AuthStatus) error {
	if sm.canTransition(from, to) {
		return nil
	}
	return ErrInvalidTransition.WithMetadata(map[string]any{
		"from": from.String(),
		"to":   to.String(),
	})
}

// settledStatus is the status an operation lands on when it finishes
// without changing the session.
func settledStatus(session *Session) AuthStatus {
	if session != nil {
		return StatusAuthenticated
	}
	return StatusAnonymous
}
