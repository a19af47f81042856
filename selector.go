package multivu

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// Event is a readiness mask.
type Event uint8

const (
	// EventRead asks to be woken when the socket has data or a pending connection.
	EventRead Event = 1 << iota
	// EventWrite asks to be woken when the socket can take more bytes.
	EventWrite
)

// selectorKey is one row of the registration table. A key with a listener
// and no exchanger is the accept socket.
type selectorKey struct {
	listener *net.TCPListener
	ex       exchanger
	events   Event
}

// readyEvent describes one socket the poll found ready. For read readiness
// the bytes already taken off the socket travel with the event.
type readyEvent struct {
	key      *selectorKey
	mask     Event
	chunk    []byte
	accepted *net.TCPConn
	err      error
}

// selector multiplexes readiness over the registered sockets. Readiness is
// checked through the runtime poller with short deadlines, so the loop that
// owns the selector is the only goroutine touching its sockets.
type selector struct {
	keys []*selectorKey
}

func (s *selector) registerListener(l *net.TCPListener) {
	for _, k := range s.keys {
		if k.listener == l {
			return
		}
	}
	s.keys = append(s.keys, &selectorKey{listener: l, events: EventRead})
}

func (s *selector) unregisterListener(l *net.TCPListener) {
	for i, k := range s.keys {
		if k.listener == l {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			return
		}
	}
}

func (s *selector) register(ex exchanger, events Event) {
	if k := s.lookup(ex.base()); k != nil {
		k.events = events
		return
	}
	s.keys = append(s.keys, &selectorKey{ex: ex, events: events})
}

// modify changes the readiness mask of a registered connection.
func (s *selector) modify(m *message, events Event) error {
	k := s.lookup(m)
	if k == nil {
		return ErrNotConnected
	}
	k.events = events
	return nil
}

func (s *selector) unregister(m *message) {
	for i, k := range s.keys {
		if k.ex != nil && k.ex.base() == m {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			return
		}
	}
}

func (s *selector) lookup(m *message) *selectorKey {
	for _, k := range s.keys {
		if k.ex != nil && k.ex.base() == m {
			return k
		}
	}
	return nil
}

func (s *selector) empty() bool {
	return len(s.keys) == 0
}

// poll waits at most timeout for readiness. Write interest is reported ready
// straight away; read interest is checked with a share of the timeout.
func (s *selector) poll(timeout time.Duration) ([]readyEvent, error) {
	var events []readyEvent
	readers := 0
	for _, k := range s.keys {
		if k.events&EventWrite != 0 {
			events = append(events, readyEvent{key: k, mask: EventWrite})
		}
		if k.events&EventRead != 0 {
			readers++
		}
	}

	if readers == 0 {
		if len(events) == 0 {
			time.Sleep(timeout)
		}
		return events, nil
	}

	window := timeout / time.Duration(readers)
	if len(events) > 0 || window < minReadWindow {
		window = minReadWindow
	}

	keys := make([]*selectorKey, len(s.keys))
	copy(keys, s.keys)
	for _, k := range keys {
		if k.events&EventRead == 0 {
			continue
		}

		if k.listener != nil {
			_ = k.listener.SetDeadline(time.Now().Add(window))
			conn, err := k.listener.AcceptTCP()
			if err != nil {
				if isTimeout(err) {
					continue
				}
				return events, errors.Wrap(err, "accept")
			}
			events = append(events, readyEvent{key: k, mask: EventRead, accepted: conn})
			continue
		}

		chunk, ready, err := k.ex.base().buf.tryRecv(window)
		if !ready {
			continue
		}
		events = append(events, readyEvent{key: k, mask: EventRead, chunk: chunk, err: err})
	}
	return events, nil
}
