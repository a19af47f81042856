package multivu

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/Zereker/multivu/instrument"
	"github.com/pkg/errors"
)

// RemoteErrorPrefix starts every result that reports a command failure.
const RemoteErrorPrefix = instrument.ErrorPrefix

// StartOptions are the server flags announced in the START greeting.
type StartOptions struct {
	Verbose     bool
	Scaffolding bool
	Threaded    bool
}

// String renders the options as the semicolon-joined subset of v, s and t.
func (o StartOptions) String() string {
	var flags []string
	if o.Verbose {
		flags = append(flags, "v")
	}
	if o.Scaffolding {
		flags = append(flags, "s")
	}
	if o.Threaded {
		flags = append(flags, "t")
	}
	return strings.Join(flags, ";")
}

// ParseStartOptions reads the query field of a START response.
func ParseStartOptions(query string) StartOptions {
	var o StartOptions
	for _, flag := range strings.Split(query, ";") {
		switch strings.TrimSpace(flag) {
		case "v":
			o.Verbose = true
		case "s":
			o.Scaffolding = true
		case "t":
			o.Threaded = true
		}
	}
	return o
}

// pendingSignal is the shutdown intent carried by the response being written.
type pendingSignal int

const (
	pendingNone pendingSignal = iota
	pendingClose
	pendingExit
)

// responder is the server-side state machine: read a request, answer it,
// flush the answer, re-arm.
type responder struct {
	*message

	dispatcher Dispatcher
	flavor     string
	startOpts  StartOptions

	request  *Content
	response *Content
	pending  pendingSignal
}

func newResponder(conn net.Conn, sel *selector, opts *options) *responder {
	return &responder{
		message:    newMessage(conn, sel, RoleResponder, opts),
		dispatcher: opts.dispatcher,
		flavor:     opts.flavor,
		startOpts: StartOptions{
			Verbose:     opts.verbose,
			Scaffolding: opts.scaffolding,
			Threaded:    !opts.blocking,
		},
	}
}

func (r *responder) processEvents(ctx context.Context, ev readyEvent) (Outcome, error) {
	if ev.mask&EventRead != 0 {
		outcome, err := r.read(ev)
		if err != nil || outcome != Continue {
			return outcome, err
		}
	}
	if ev.mask&EventWrite != 0 {
		return r.write(ctx)
	}
	return Continue, nil
}

func (r *responder) read(ev readyEvent) (Outcome, error) {
	if ev.err != nil {
		r.logger.Info("client connection failed", "addr", r.peer, "error", ev.err)
		return PeerDisconnected, nil
	}
	if err := r.buf.onReadable(ev.chunk); err != nil {
		r.logger.Info("client closed connection", "addr", r.peer)
		return PeerDisconnected, nil
	}

	ready, err := r.parse()
	if err != nil {
		r.logger.Error("dropping client after bad frame", "addr", r.peer, "error", err)
		return PeerDisconnected, nil
	}
	if !ready {
		return Continue, nil
	}

	r.request = r.content
	r.rec.FrameReceived(RoleResponder, r.request.Action)
	r.logger.Debug("request received", "addr", r.peer, "action", r.request.Action, "query", r.request.Query)

	if err := r.respond(); err != nil {
		r.logger.Error("dropping client after unencodable response", "addr", r.peer, "error", err)
		return PeerDisconnected, nil
	}
	if err := r.sel.modify(r.message, EventWrite); err != nil {
		return PeerDisconnected, nil
	}
	return Continue, nil
}

// respond builds the response to the decoded request and queues it in the
// request's own content type and encoding.
func (r *responder) respond() error {
	req := r.request
	resp := Content{Action: req.Action, Query: req.Query}

	switch req.Action {
	case ActionStart:
		resp.Result = fmt.Sprintf("Connected to %s MultiVuServer at %s", r.flavor, formatPeer(r.peer))
		resp.Query = r.startOpts.String()
	case ActionExit:
		resp.Result = "Closing client and exiting server"
		resp.Query = ActionExit
		r.pending = pendingExit
	case ActionClose:
		resp.Result = fmt.Sprintf("Client %s disconnected", formatPeer(r.peer))
		resp.Query = ActionClose
		r.pending = pendingClose
	default:
		resp.Result = r.dispatch(req.Action, req.Query)
	}

	r.response = &resp
	err := r.queue(resp, r.header.ContentType, r.header.ContentEncoding)
	var frameErr *FrameError
	if errors.As(err, &frameErr) && !strings.EqualFold(r.header.ContentEncoding, EncodingUTF8) {
		// The response may carry text the request's charset cannot.
		r.logger.Warn("response not representable, answering in utf-8",
			"addr", r.peer, "content-encoding", r.header.ContentEncoding, "error", err)
		err = r.queue(resp, r.header.ContentType, EncodingUTF8)
	}
	if err != nil {
		return errors.Wrap(err, "queue response")
	}
	return nil
}

// dispatch forwards a command. Failures become the result text.
func (r *responder) dispatch(action, query string) string {
	if r.dispatcher == nil {
		r.rec.DomainError(action)
		return RemoteErrorPrefix + "no command dispatcher configured"
	}

	result, err := r.dispatcher.Dispatch(action, query)
	if err != nil {
		r.rec.DomainError(action)
		r.logger.Info("command failed", "addr", r.peer, "action", action, "error", err)
		text := err.Error()
		if !strings.HasPrefix(text, RemoteErrorPrefix) {
			text = RemoteErrorPrefix + text
		}
		return text
	}
	return result
}

func (r *responder) write(ctx context.Context) (Outcome, error) {
	done, err := r.flush(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Continue, err
		}
		r.logger.Info("giving up on client after failed sends", "addr", r.peer, "error", err)
		return PeerDisconnected, nil
	}
	if !done {
		return Continue, nil
	}

	r.logger.Debug("response sent", "addr", r.peer, "action", r.response.Action)

	pending := r.pending
	r.pending = pendingNone
	r.request = nil
	r.response = nil
	r.reset()

	switch pending {
	case pendingExit:
		return ServerExiting, nil
	case pendingClose:
		return PeerClosing, nil
	}

	if err := r.sel.modify(r.message, EventRead); err != nil {
		return PeerDisconnected, nil
	}
	return Continue, nil
}

// formatPeer renders an address as a (host, port) tuple, the form existing
// clients expect in the greeting.
func formatPeer(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return fmt.Sprintf("('%s', %d)", tcp.IP.String(), tcp.Port)
	}
	if addr == nil {
		return "()"
	}
	return fmt.Sprintf("('%s')", addr.String())
}
