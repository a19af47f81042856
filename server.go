package multivu

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Server answers MultiVu requests from one client at a time.
type Server struct {
	addr string
	opts options

	status connStatus

	mu       sync.Mutex
	listener *net.TCPListener
	group    *errgroup.Group
	cancel   context.CancelFunc
	done     chan struct{}
	closed   atomic.Bool
}

// NewServer creates a server for addr ("host:port"). Nothing is bound until
// Open is called.
func NewServer(addr string, opt ...Option) *Server {
	s := &Server{
		addr: addr,
		opts: newOptions(opt),
	}
	s.status.recorder = s.opts.recorder
	return s
}

// Open binds the listening socket and starts the event loop. A bind failure
// is returned as a *BindError before any loop work happens.
//
// By default the loop runs on its own goroutine and Open returns once the
// socket is bound. With BlockingOption(true) Open runs the loop itself and
// returns when the server stops.
func (s *Server) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return ErrServerOpen
	}

	laddr, err := net.ResolveTCPAddr("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return &BindError{Addr: s.addr, Err: err}
	}
	listener, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		s.mu.Unlock()
		return &BindError{Addr: s.addr, Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.listener = listener
	s.cancel = cancel
	s.done = make(chan struct{})
	group, gctx := errgroup.WithContext(ctx)
	s.group = group
	s.mu.Unlock()

	s.opts.logger.Info("server started",
		"addr", listener.Addr(),
		"flavor", s.opts.flavor,
		"options", s.StartOptions().String())

	m := newMonitor(listener, &s.opts, &s.status)
	done := s.done
	group.Go(func() error {
		defer close(done)
		defer s.opts.logger.Info("server stopped", "addr", listener.Addr())
		return m.serve(gctx)
	})

	if s.opts.blocking {
		return s.Wait()
	}
	return nil
}

// Wait blocks until the event loop has stopped and returns its error.
func (s *Server) Wait() error {
	s.mu.Lock()
	group, cancel := s.group, s.cancel
	s.mu.Unlock()
	if group == nil {
		return nil
	}

	err := group.Wait()
	cancel()
	return err
}

// Done is closed when the event loop stops, for example after a client
// sent EXIT.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Close stops the event loop, drops the active client and closes the
// listening socket. Safe to call multiple times and on a server that was
// never opened.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	err := s.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Addr returns the bound address, or nil before Open.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Flavor returns the instrument flavor announced to clients.
func (s *Server) Flavor() string {
	return s.opts.flavor
}

// IsClientConnected reports whether a client is currently connected.
func (s *Server) IsClientConnected() bool {
	connected, _, _ := s.status.get()
	return connected
}

// ClientAddress returns the address of the connected client, or nil.
func (s *Server) ClientAddress() net.Addr {
	_, addr, _ := s.status.get()
	return addr
}

// SessionID returns the id assigned to the current connection, or "".
func (s *Server) SessionID() string {
	_, _, id := s.status.get()
	return id
}

// Subscribe registers fn to be called with the new status whenever a client
// connects or disconnects. fn runs on the event loop goroutine and must not
// block. The returned function removes the subscription.
func (s *Server) Subscribe(fn func(connected bool)) (unsubscribe func()) {
	return s.status.subject.subscribe(fn)
}

// StartOptions returns the flags announced in the START greeting.
func (s *Server) StartOptions() StartOptions {
	return StartOptions{
		Verbose:     s.opts.verbose,
		Scaffolding: s.opts.scaffolding,
		Threaded:    !s.opts.blocking,
	}
}
