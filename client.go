package multivu

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Client talks to a MultiVu server. It keeps a single connection and allows
// one request in flight at a time; a request issued while another is
// outstanding fails with ErrRequestInFlight.
type Client struct {
	addr string
	opts options

	gate   *semaphore.Weighted
	status connStatus

	mu         sync.Mutex
	sel        *selector
	ini        *initiator
	flavor     string
	serverOpts StartOptions
}

// NewClient creates a client for the server at addr ("host:port").
func NewClient(addr string, opt ...Option) *Client {
	c := &Client{
		addr: addr,
		opts: newOptions(opt),
		gate: semaphore.NewWeighted(1),
	}
	c.status.recorder = c.opts.recorder
	return c
}

// Open connects to the server and performs the START handshake. A failed
// connection attempt is reported as a *SessionError of kind NoConnection.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.ini != nil {
		c.mu.Unlock()
		return nil
	}

	dialer := net.Dialer{Timeout: c.opts.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.mu.Unlock()
		return &SessionError{Kind: NoConnection, Msg: "no connection to server at " + c.addr, Err: err}
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	c.sel = &selector{}
	c.ini = newInitiator(conn, c.sel, &c.opts)
	c.sel.register(c.ini, 0)
	c.mu.Unlock()

	c.opts.logger.Info("connected to server", "addr", conn.RemoteAddr())
	c.status.set(true, conn.RemoteAddr(), "")

	if _, err := c.QueryServer(ctx, ActionStart, ""); err != nil {
		return err
	}

	c.mu.Lock()
	if c.ini != nil {
		c.flavor = c.ini.flavor
		c.serverOpts = c.ini.serverOpts
	}
	c.mu.Unlock()

	c.opts.logger.Info("handshake complete", "flavor", c.Flavor(), "options", c.ServerOptions().String())
	return nil
}

// QueryServer sends one request and returns the result of the response.
//
// A result that carries a command error is returned together with a
// *SessionError of kind Remote; the connection stays usable. CLOSE and EXIT
// round trips, lost connections and protocol violations tear the connection
// down and are reported with the matching SessionErrorKind.
func (c *Client) QueryServer(ctx context.Context, action, query string) (string, error) {
	if !c.gate.TryAcquire(1) {
		return "", ErrRequestInFlight
	}
	defer c.gate.Release(1)

	return c.exchange(ctx, action, query)
}

func (c *Client) exchange(ctx context.Context, action, query string) (string, error) {
	c.mu.Lock()
	sel, ini := c.sel, c.ini
	c.mu.Unlock()
	if ini == nil {
		return "", &SessionError{Kind: NoConnection, Msg: "not connected to server", Err: ErrNotConnected}
	}

	if err := ini.queueRequest(action, query); err != nil {
		if errors.Is(err, ErrRequestInFlight) {
			return "", err
		}
		c.teardown()
		return "", &SessionError{Kind: Protocol, Msg: "could not encode request", Err: err}
	}

	outcome, err := c.drive(ctx, sel)
	if err != nil {
		c.teardown()
		return "", c.translate(err)
	}

	resp := ini.response
	switch outcome {
	case SelfClosing:
		c.teardown()
		return resp.Result, &SessionError{Kind: ClientClosed, Msg: "client closed connection"}
	case PeerExiting:
		c.teardown()
		return resp.Result, &SessionError{Kind: ServerExited, Msg: "server exited"}
	}

	if strings.HasPrefix(resp.Result, RemoteErrorPrefix) {
		return resp.Result, &SessionError{Kind: Remote, Msg: strings.TrimPrefix(resp.Result, RemoteErrorPrefix)}
	}
	return resp.Result, nil
}

// drive polls the connection until the outstanding exchange completes.
func (c *Client) drive(ctx context.Context, sel *selector) (Outcome, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Continue, err
		}

		events, err := sel.poll(c.opts.pollInterval)
		if err != nil {
			return Continue, err
		}
		for _, ev := range events {
			outcome, err := ev.key.ex.processEvents(ctx, ev)
			if err != nil {
				return outcome, err
			}
			if outcome != Continue {
				return outcome, nil
			}
		}
	}
}

func (c *Client) translate(err error) error {
	var frameErr *FrameError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &SessionError{Kind: Canceled, Msg: "request canceled", Err: err}
	case errors.Is(err, ErrConnectionLost):
		c.opts.logger.Error("lost connection to server", "addr", c.addr, "error", err)
		return &SessionError{Kind: ConnectionLost, Msg: "lost connection to server", Err: err}
	case errors.As(err, &frameErr), errors.Is(err, ErrUnexpectedResponse):
		c.opts.logger.Error("bad response from server", "addr", c.addr, "error", err)
		return &SessionError{Kind: Protocol, Msg: "bad response from server", Err: err}
	default:
		c.opts.logger.Error("unexpected client error", "addr", c.addr, "error", err)
		return &SessionError{Kind: ConnectionLost, Msg: "lost connection to server", Err: err}
	}
}

// teardown closes the connection. Safe to call when already closed.
func (c *Client) teardown() {
	c.mu.Lock()
	ini := c.ini
	c.ini = nil
	if ini != nil {
		c.sel.unregister(ini.message)
	}
	c.mu.Unlock()

	if ini == nil {
		return
	}
	if err := ini.close(); err != nil {
		c.opts.logger.Debug("close connection", "error", err)
	}
	c.opts.logger.Info("disconnected from server", "addr", c.addr)
	c.status.set(false, nil, "")
}

// Close sends CLOSE and disconnects. The server keeps running. It waits for
// an outstanding request to finish first and is a no-op when not connected.
func (c *Client) Close() error {
	return c.shutdown(ActionClose, ClientClosed)
}

// CloseServer sends EXIT, which stops the server, and disconnects.
func (c *Client) CloseServer() error {
	return c.shutdown(ActionExit, ServerExited)
}

func (c *Client) shutdown(action string, expected SessionErrorKind) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.dialTimeout)
	defer cancel()

	if err := c.gate.Acquire(ctx, 1); err != nil {
		c.teardown()
		return &SessionError{Kind: Canceled, Msg: "request still in flight", Err: err}
	}
	defer c.gate.Release(1)

	if !c.IsConnected() {
		return nil
	}

	_, err := c.exchange(ctx, action, "")
	c.teardown()
	if err == nil || IsSessionError(err, expected) {
		return nil
	}
	return err
}

// IsConnected reports whether the client holds a connection.
func (c *Client) IsConnected() bool {
	connected, _, _ := c.status.get()
	return connected
}

// Flavor returns the instrument flavor parsed from the last START greeting.
func (c *Client) Flavor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flavor
}

// ServerOptions returns the options the server announced in its greeting.
func (c *Client) ServerOptions() StartOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverOpts
}

// Subscribe registers fn to be called when the connection opens or closes.
func (c *Client) Subscribe(fn func(connected bool)) (unsubscribe func()) {
	return c.status.subject.subscribe(fn)
}
