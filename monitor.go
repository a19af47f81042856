package multivu

import (
	"context"
	"net"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// monitor is the server's event loop. It owns the listening socket and at
// most one responder at a time; while a client is connected the listener is
// left out of the poll so further clients wait in the accept backlog.
type monitor struct {
	listener *net.TCPListener
	sel      *selector
	opts     *options
	logger   Logger
	status   *connStatus

	active    *responder
	sessionID string
}

func newMonitor(listener *net.TCPListener, opts *options, status *connStatus) *monitor {
	return &monitor{
		listener: listener,
		sel:      &selector{},
		opts:     opts,
		logger:   opts.logger,
		status:   status,
	}
}

// serve runs the loop until ctx is canceled, a client asks the server to
// exit, or an unexpected error occurs. The active connection and the
// listener are closed on every exit path.
func (m *monitor) serve(ctx context.Context) error {
	m.sel.registerListener(m.listener)
	defer m.teardown()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("server canceled", "addr", m.listener.Addr())
			return nil
		default:
		}

		stop, err := m.step(ctx)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// step runs one poll and reacts to everything it reported.
func (m *monitor) step(ctx context.Context) (stop bool, err error) {
	events, err := m.sel.poll(m.opts.pollInterval)
	if err != nil {
		m.logger.Error("poll failed", "error", err)
		return true, err
	}

	for _, ev := range events {
		if ev.key.ex == nil {
			if ev.accepted != nil {
				m.accept(ev.accepted)
			}
			continue
		}

		outcome, err := ev.key.ex.processEvents(ctx, ev)
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			m.logger.Error("unexpected error, stopping server", "addr", ev.key.ex.base().peer, "error", err)
			return true, errors.Wrap(err, "process events")
		}

		switch outcome {
		case PeerDisconnected:
			m.drop("client disconnected")
		case PeerClosing:
			m.drop("client closed connection")
		case ServerExiting:
			m.logger.Info("exit requested by client", "addr", ev.key.ex.base().peer)
			return true, nil
		}
	}
	return false, nil
}

func (m *monitor) accept(conn *net.TCPConn) {
	if m.active != nil {
		m.logger.Warn("rejecting second client", "addr", conn.RemoteAddr())
		_ = conn.Close()
		return
	}

	_ = conn.SetNoDelay(true)
	m.sessionID = uuid.NewString()
	m.active = newResponder(conn, m.sel, m.opts)
	m.sel.register(m.active, EventRead)
	m.sel.unregisterListener(m.listener)

	m.logger.Info("client connected", "addr", conn.RemoteAddr(), "session", m.sessionID)
	m.status.set(true, conn.RemoteAddr(), m.sessionID)
}

// drop closes the active connection and resumes accepting.
func (m *monitor) drop(reason string) {
	if m.active == nil {
		return
	}

	m.logger.Info(reason, "addr", m.active.peer, "session", m.sessionID)
	m.sel.unregister(m.active.message)
	if err := m.active.close(); err != nil {
		m.logger.Debug("close connection", "error", err)
	}
	m.active = nil
	m.sessionID = ""

	m.sel.registerListener(m.listener)
	m.status.set(false, nil, "")
}

func (m *monitor) teardown() {
	if m.active != nil {
		m.sel.unregister(m.active.message)
		_ = m.active.close()
		m.active = nil
	}
	m.sel.unregisterListener(m.listener)
	if err := m.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		m.logger.Debug("close listener", "error", err)
	}
	m.status.set(false, nil, "")
}
