package session

import "sync"

// Snapshot is one immutable view of the observable session state.
type Snapshot struct {
	// Session is the currently established session, nil when logged
	// out or not yet validated.
	Session *Record

	// Err is the error from the most recent failed operation, cleared
	// when a session is established or the state is reset.
	Err error

	// IsLoading is true while a Validate call is in flight.
	IsLoading bool

	// LastErr is the most recent error ever recorded. Unlike Err it
	// survives teardown and reset, as a diagnostic trail.
	LastErr error
}

// State holds the observable session state. It is mutated only by the
// Manager; consumers read snapshots or subscribe for changes.
type State struct {
	mu   sync.Mutex
	cur  Snapshot
	subs map[int]chan Snapshot
	next int
}

// NewState creates an empty State.
func NewState() *State {
	return &State{subs: make(map[int]chan Snapshot)}
}

// Snapshot returns a copy of the current state. The contained record is
// copied too, so callers cannot mutate the live session.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.clone()
}

// Subscribe registers a watcher. The returned channel carries the
// latest snapshot after every mutation, coalescing when the consumer
// lags: a slow reader sees the newest state, not every intermediate
// one. The cancel func unregisters the watcher and closes the channel.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (sn Snapshot) clone() Snapshot {
	if sn.Session != nil {
		r := *sn.Session
		sn.Session = &r
	}
	return sn
}

// mutate applies fn to the state and notifies subscribers. All mutators
// below funnel through it.
func (s *State) mutate(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.cur)
	for _, ch := range s.subs {
		snap := s.cur.clone()
		// Replace a pending unread snapshot instead of blocking.
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// setSession establishes r as the live session and clears the current
// error.
func (s *State) setSession(r *Record) {
	s.mutate(func(sn *Snapshot) {
		sn.Session = r
		sn.Err = nil
	})
}

// fail records err without touching the session.
func (s *State) fail(err error) {
	s.mutate(func(sn *Snapshot) {
		sn.Err = err
		sn.LastErr = err
	})
}

// drop removes the session, recording err when non-nil. Used on
// terminal teardown so consumers can surface why the session vanished.
func (s *State) drop(err error) {
	s.mutate(func(sn *Snapshot) {
		sn.Session = nil
		if err != nil {
			sn.Err = err
			sn.LastErr = err
		}
	})
}

// reset returns the state to empty. LastErr is deliberately retained.
func (s *State) reset() {
	s.mutate(func(sn *Snapshot) {
		sn.Session = nil
		sn.Err = nil
		sn.IsLoading = false
	})
}

func (s *State) setLoading(v bool) {
	s.mutate(func(sn *Snapshot) {
		sn.IsLoading = v
	})
}
