package authclient

// AuthStatus is the lifecycle position of the client session.
type AuthStatus uint8

const (
	StatusUnknown AuthStatus = iota
	StatusLoading
	StatusAuthenticated
	StatusAnonymous
	StatusErrored
)

func (s AuthStatus) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	case StatusErrored:
		return "errored"
	default:
		return "invalid"
	}
}

// IsSettled reports whether the status is a resting one guards can act on.
func (s AuthStatus) IsSettled() bool {
	switch s {
	case StatusAuthenticated, StatusAnonymous, StatusErrored:
		return true
	default:
		return false
	}
}

// AuthState is an immutable snapshot of the session store. Values handed
// out by Store are deep copies, mutating them has no effect on the store.
type AuthState struct {
	Status    AuthStatus
	IsLoading bool
	Session   *Session
	User      *User
	Err       error
	Message   string
	Version   uint64
}

// IsAuthenticated is true exactly when a session is present.
func (s AuthState) IsAuthenticated() bool {
	return s.Session != nil
}

// AccessToken returns the current access token or "".
func (s AuthState) AccessToken() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.AccessToken
}

// Settled reports whether no operation is in flight.
func (s AuthState) Settled() bool {
	return !s.IsLoading && s.Status != StatusLoading && s.Status != StatusUnknown
}

func (s AuthState) clone() AuthState {
	out := s
	out.Session = s.Session.Clone()
	out.User = s.User.Clone()
	return out
}
