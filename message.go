package multivu

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// State is the phase of the exchange a connection is in.
type State int

const (
	StateIdle State = iota
	StateAwaitingHeaderLength
	StateAwaitingHeader
	StateAwaitingPayload
	StateReady
	StateAwaitingWrite
	StateWritten
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingHeaderLength:
		return "awaiting header length"
	case StateAwaitingHeader:
		return "awaiting header"
	case StateAwaitingPayload:
		return "awaiting payload"
	case StateReady:
		return "ready"
	case StateAwaitingWrite:
		return "awaiting write"
	case StateWritten:
		return "written"
	default:
		return "unknown"
	}
}

// Outcome is what one step of a state machine asks the monitor to do next.
type Outcome int

const (
	// Continue keeps driving the connection.
	Continue Outcome = iota
	// ResponseReady means the initiator decoded the response to its request.
	ResponseReady
	// PeerDisconnected means the peer went away; the server returns to accepting.
	PeerDisconnected
	// PeerClosing means the responder flushed its CLOSE confirmation.
	PeerClosing
	// ServerExiting means the responder flushed its EXIT confirmation.
	ServerExiting
	// SelfClosing means the initiator completed a CLOSE round trip.
	SelfClosing
	// PeerExiting means the initiator completed an EXIT round trip.
	PeerExiting
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case ResponseReady:
		return "response ready"
	case PeerDisconnected:
		return "peer disconnected"
	case PeerClosing:
		return "peer closing"
	case ServerExiting:
		return "server exiting"
	case SelfClosing:
		return "self closing"
	case PeerExiting:
		return "peer exiting"
	default:
		return "unknown"
	}
}

// exchanger is a role-specific state machine bound to one connection.
type exchanger interface {
	processEvents(ctx context.Context, ev readyEvent) (Outcome, error)
	base() *message
}

// message is the machinery both roles share: the connection buffer, the
// parse state of the inbound frame and the flush/retry logic.
type message struct {
	conn   net.Conn
	peer   net.Addr
	buf    *connBuffer
	sel    *selector
	role   Role
	logger Logger
	rec    Recorder

	sendRetries   int
	retryInterval time.Duration

	state     State
	headerLen uint16
	header    *Header
	content   *Content
}

func newMessage(conn net.Conn, sel *selector, role Role, opts *options) *message {
	return &message{
		conn:          conn,
		peer:          conn.RemoteAddr(),
		buf:           newConnBuffer(conn, opts.sendWindow),
		sel:           sel,
		role:          role,
		logger:        opts.logger,
		rec:           opts.recorder,
		sendRetries:   opts.sendRetries,
		retryInterval: opts.retryInterval,
	}
}

func (m *message) base() *message { return m }

// State returns the current phase.
func (m *message) State() State { return m.state }

// parse advances through protoheader, header and payload as far as the
// buffered bytes allow. It reports true once a full frame is decoded. Bytes
// arriving outside the read phases stay buffered until the exchange resets.
func (m *message) parse() (bool, error) {
	for {
		switch m.state {
		case StateIdle:
			m.state = StateAwaitingHeaderLength

		case StateAwaitingHeaderLength:
			n, ok := DecodeHeaderLength(m.buf.recv)
			if !ok {
				return false, nil
			}
			m.headerLen = n
			m.buf.consume(protoHeaderLength)
			m.state = StateAwaitingHeader

		case StateAwaitingHeader:
			h, ok, err := DecodeHeader(m.buf.recv, m.headerLen)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			m.header = h
			m.buf.consume(int(m.headerLen))
			m.state = StateAwaitingPayload

		case StateAwaitingPayload:
			c, ok, err := DecodeContent(m.buf.recv, m.header.ContentLength, m.header.ContentType, m.header.ContentEncoding)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			m.content = c
			m.buf.consume(int(m.header.ContentLength))
			m.state = StateReady
			return true, nil

		case StateReady:
			return true, nil

		default:
			return false, nil
		}
	}
}

// queue encodes content and appends it to the send buffer.
func (m *message) queue(content Content, contentType, contentEncoding string) error {
	frame, err := EncodeFrame(content, contentType, contentEncoding)
	if err != nil {
		return err
	}
	m.buf.queueForSend(frame)
	m.state = StateAwaitingWrite
	m.rec.FrameSent(m.role, content.Action, len(frame))
	return nil
}

// flush writes as much of the send buffer as the socket takes. A failed
// send is retried after a pause; ErrSendFailed escapes once retries run out.
// done reports that the whole frame left the buffer.
func (m *message) flush(ctx context.Context) (done bool, err error) {
	for attempt := 0; ; attempt++ {
		_, err = m.buf.trySend()
		if err == nil {
			break
		}
		if !errors.Is(err, ErrSendFailed) || attempt >= m.sendRetries {
			return false, err
		}

		m.logger.Warn("send failed, retrying", "addr", m.peer, "attempt", attempt+1, "error", err)
		m.rec.SendRetry(m.role)

		timer := time.NewTimer(m.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	if m.buf.pendingSend() > 0 {
		return false, nil
	}
	m.state = StateWritten
	return true, nil
}

// reset re-arms the parser for the next exchange.
func (m *message) reset() {
	m.state = StateIdle
	m.headerLen = 0
	m.header = nil
	m.content = nil
}

// close shuts the socket and discards all buffered state.
func (m *message) close() error {
	m.reset()
	m.buf.reset()
	return m.conn.Close()
}
