package multivu

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// Errors returned by the protocol core.
var (
	// ErrMalformedHeader is returned when a JSON header lacks a required field
	// or cannot be decoded.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrHeaderTooLarge is returned when an encoded header does not fit the
	// 16-bit protoheader.
	ErrHeaderTooLarge = errors.New("header too large")
	// ErrUnsupportedContent is returned for an unknown content-type or
	// content-encoding.
	ErrUnsupportedContent = errors.New("unsupported content")
	// ErrPeerClosed is returned when a read on a live socket yields zero bytes.
	ErrPeerClosed = errors.New("peer closed connection")
	// ErrSendFailed is returned when the OS rejects a write on a broken socket.
	ErrSendFailed = errors.New("send failed")
	// ErrConnectionLost is returned on the initiator side when the server
	// connection goes away mid-session.
	ErrConnectionLost = errors.New("lost connection")
	// ErrRequestInFlight is returned when a second request is issued before the
	// previous response arrived.
	ErrRequestInFlight = errors.New("request already in flight")
	// ErrNotConnected is returned when an operation needs a registered connection.
	ErrNotConnected = errors.New("not connected")
	// ErrUnexpectedResponse is returned when the response action does not echo
	// the request action.
	ErrUnexpectedResponse = errors.New("unexpected response")
	// ErrServerOpen is returned by Open on a server that is already running.
	ErrServerOpen = errors.New("server already open")
	// ErrWaitTimeout is returned by WaitFor when the subsystems did not
	// settle in time.
	ErrWaitTimeout = errors.New("timed out waiting for stable state")
)

// FrameErrorKind classifies codec failures.
type FrameErrorKind int

const (
	// FrameErrorHeader indicates a header that is not valid JSON or misses a field.
	FrameErrorHeader FrameErrorKind = iota
	// FrameErrorTooLarge indicates a header over the protoheader ceiling.
	FrameErrorTooLarge
	// FrameErrorContent indicates a payload that could not be decoded.
	FrameErrorContent
	// FrameErrorUnsupported indicates an unknown content type or encoding.
	FrameErrorUnsupported
)

// FrameError reports a failure to encode or decode a frame.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// BindError reports that the server could not bind its listening address.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// SessionErrorKind classifies the errors a Client reports to its caller.
type SessionErrorKind int

const (
	// NoConnection means the client never reached the server.
	NoConnection SessionErrorKind = iota
	// ConnectionLost means an established connection dropped.
	ConnectionLost
	// ClientClosed means the client completed a CLOSE round trip.
	ClientClosed
	// ServerExited means the client completed an EXIT round trip.
	ServerExited
	// Remote means the server answered with a command error.
	Remote
	// Protocol means the server sent a frame the client could not use.
	Protocol
	// Canceled means the caller's context ended the exchange.
	Canceled
)

func (k SessionErrorKind) String() string {
	switch k {
	case NoConnection:
		return "no connection"
	case ConnectionLost:
		return "connection lost"
	case ClientClosed:
		return "client closed"
	case ServerExited:
		return "server exited"
	case Remote:
		return "remote error"
	case Protocol:
		return "protocol error"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// SessionError is the single error type returned by Client methods.
type SessionError struct {
	Kind SessionErrorKind
	Msg  string
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsSessionError reports whether err is a *SessionError of the given kind.
func IsSessionError(err error, kind SessionErrorKind) bool {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// isTimeout reports whether err is a deadline expiry, which the core treats
// as "would block".
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
