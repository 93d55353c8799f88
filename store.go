package authclient

import (
	"sync"
)

// StateReader is the read only view of the session store. Guards, the
// interceptor and UI adapters depend on this, never on the writer.
type StateReader interface {
	Snapshot() AuthState
	Subscribe() (<-chan AuthState, func())
}

// Store is the single shared session cell. Reads are open to everyone,
// writes are package private and performed only by the owning Auther.
type Store struct {
	mu      sync.RWMutex
	state   AuthState
	subs    map[uint64]chan AuthState
	nextSub uint64
	machine *authStateMachine
	logger  Logger
}

var _ StateReader = (*Store)(nil)

func newStore(initial AuthState, logger Logger) *Store {
	return &Store{
		state:   initial.clone(),
		subs:    map[uint64]chan AuthState{},
		machine: newAuthStateMachine(),
		logger:  normalizeLogger(logger),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe returns a channel that always holds the latest state. Slow
// readers skip intermediate states, they never block the writer. The
// current state is delivered immediately. Call cancel to release it.
func (s *Store) Subscribe() (<-chan AuthState, func()) {
	ch := make(chan AuthState, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.state.clone()
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// update applies fn to a working copy and commits it if the status change
// is allowed. Rejected transitions leave the store untouched.
func (s *Store) update(fn func(*AuthState)) (AuthState, error) {
	state, _, err := s.updateIf(nil, fn)
	return state, err
}

// updateIf is update guarded by cond, checked under the same lock. It
// reports false and changes nothing when cond rejects the current state.
func (s *Store) updateIf(cond func(AuthState) bool, fn func(*AuthState)) (AuthState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cond != nil && !cond(s.state) {
		return s.state.clone(), false, nil
	}

	next := s.state.clone()
	fn(&next)

	if err := s.machine.validate(s.state.Status, next.Status); err != nil {
		s.logger.Warn("session store rejected transition",
			"from", s.state.Status.String(),
			"to", next.Status.String(),
		)
		return s.state.clone(), false, err
	}

	next.Version = s.state.Version + 1
	s.state = next
	s.broadcast()
	return s.state.clone(), true, nil
}

func (s *Store) broadcast() {
	for _, ch := range s.subs {
		snapshot := s.state.clone()
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

func (s *Store) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
