package multivu

import (
	"net"
	"sync"
)

// subject fans connection status changes out to subscribed callbacks in
// subscription order.
type subject struct {
	mu        sync.Mutex
	nextID    int
	observers []observer
}

type observer struct {
	id int
	fn func(connected bool)
}

// subscribe registers fn and returns a function that removes it again.
func (s *subject) subscribe(fn func(connected bool)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, observer{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *subject) notify(connected bool) {
	s.mu.Lock()
	observers := make([]observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.fn(connected)
	}
}

// connStatus is the only state shared between the monitor goroutine and the
// rest of the process: whether a peer is connected, and who it is.
type connStatus struct {
	mu        sync.Mutex
	connected bool
	addr      net.Addr
	sessionID string

	subject  subject
	recorder Recorder
}

// set records the new status and notifies observers when it flipped.
func (s *connStatus) set(connected bool, addr net.Addr, sessionID string) {
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	s.addr = addr
	s.sessionID = sessionID
	s.mu.Unlock()

	if !changed {
		return
	}
	if s.recorder != nil {
		s.recorder.ConnectionChanged(connected)
	}
	s.subject.notify(connected)
}

func (s *connStatus) get() (connected bool, addr net.Addr, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected, s.addr, s.sessionID
}
