package multivu

import (
	"testing"

	"github.com/pkg/errors"
)

func TestSessionError(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&SessionError{Kind: ConnectionLost, Msg: "lost connection to server", Err: cause})

	if err.Error() != "lost connection to server: connection reset" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("SessionError does not unwrap to its cause")
	}
	if !IsSessionError(err, ConnectionLost) || IsSessionError(err, Remote) {
		t.Error("IsSessionError matched the wrong kind")
	}
	if IsSessionError(cause, ConnectionLost) {
		t.Error("IsSessionError matched a plain error")
	}

	wrapped := errors.Wrap(err, "query")
	if !IsSessionError(wrapped, ConnectionLost) {
		t.Error("IsSessionError did not see through a wrap")
	}
}

func TestSessionErrorKind_String(t *testing.T) {
	kinds := map[SessionErrorKind]string{
		NoConnection:   "no connection",
		ConnectionLost: "connection lost",
		ClientClosed:   "client closed",
		ServerExited:   "server exited",
		Remote:         "remote error",
		Protocol:       "protocol error",
		Canceled:       "canceled",
	}
	for kind, want := range kinds {
		if kind.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(kind), kind.String(), want)
		}
	}
}

func TestBindError(t *testing.T) {
	cause := errors.New("address already in use")
	err := &BindError{Addr: "0.0.0.0:5000", Err: cause}

	if err.Error() != "bind 0.0.0.0:5000: address already in use" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("BindError does not unwrap to its cause")
	}
}

func TestFrameError(t *testing.T) {
	err := &FrameError{Kind: FrameErrorHeader, Msg: "missing required header field byteorder", Err: ErrMalformedHeader}
	if !errors.Is(err, ErrMalformedHeader) {
		t.Error("FrameError does not unwrap to its sentinel")
	}

	bare := &FrameError{Kind: FrameErrorContent, Msg: "failed to decode content"}
	if bare.Error() != "failed to decode content" {
		t.Errorf("Error() = %q", bare.Error())
	}
}
