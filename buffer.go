package multivu

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

const (
	// defaultRecvChunk is the size of a single socket read.
	defaultRecvChunk = 4096
	// minReadWindow is the shortest deadline used for a readiness check.
	minReadWindow = time.Millisecond
)

// connBuffer holds the raw receive and send bytes of one socket. It never
// blocks longer than the window handed to it: reads and writes run under a
// short deadline and an expired deadline means "would block".
type connBuffer struct {
	conn net.Conn
	recv []byte
	send []byte

	scratch    []byte
	sendWindow time.Duration
}

func newConnBuffer(conn net.Conn, sendWindow time.Duration) *connBuffer {
	return &connBuffer{
		conn:       conn,
		scratch:    make([]byte, defaultRecvChunk),
		sendWindow: sendWindow,
	}
}

// onReadable appends a chunk read from the socket. An empty chunk means the
// peer shut the connection down.
func (b *connBuffer) onReadable(chunk []byte) error {
	if len(chunk) == 0 {
		return ErrPeerClosed
	}
	b.recv = append(b.recv, chunk...)
	return nil
}

// consume drops n parsed bytes from the head of the receive buffer.
func (b *connBuffer) consume(n int) {
	if n >= len(b.recv) {
		b.recv = b.recv[:0]
		return
	}
	b.recv = append(b.recv[:0], b.recv[n:]...)
}

// queueForSend appends frame bytes to the send buffer.
func (b *connBuffer) queueForSend(p []byte) {
	b.send = append(b.send, p...)
}

// pendingSend returns the number of queued bytes not yet accepted by the OS.
func (b *connBuffer) pendingSend() int {
	return len(b.send)
}

// tryRecv waits at most window for data. ready is false when nothing
// arrived. A ready result with an empty chunk is an orderly shutdown.
func (b *connBuffer) tryRecv(window time.Duration) (chunk []byte, ready bool, err error) {
	if window < minReadWindow {
		window = minReadWindow
	}
	_ = b.conn.SetReadDeadline(time.Now().Add(window))

	n, err := b.conn.Read(b.scratch)
	if n > 0 {
		chunk = make([]byte, n)
		copy(chunk, b.scratch[:n])
		return chunk, true, nil
	}
	switch {
	case err == nil:
		return nil, false, nil
	case isTimeout(err):
		return nil, false, nil
	case errors.Is(err, io.EOF):
		return nil, true, nil
	default:
		return nil, true, errors.Wrap(err, "recv")
	}
}

// trySend performs one bounded write of the send buffer and trims what the
// OS accepted. A partial write is normal. A broken socket yields ErrSendFailed.
func (b *connBuffer) trySend() (int, error) {
	if len(b.send) == 0 {
		return 0, nil
	}
	_ = b.conn.SetWriteDeadline(time.Now().Add(b.sendWindow))

	n, err := b.conn.Write(b.send)
	if n >= len(b.send) {
		b.send = b.send[:0]
	} else if n > 0 {
		b.send = append(b.send[:0], b.send[n:]...)
	}

	switch {
	case err == nil:
		return n, nil
	case isTimeout(err):
		return n, nil
	case isConnectionLost(err):
		return n, errors.Wrapf(ErrSendFailed, "%v", err)
	default:
		return n, errors.Wrap(err, "send")
	}
}

// reset discards both buffers.
func (b *connBuffer) reset() {
	b.recv = b.recv[:0]
	b.send = b.send[:0]
}
