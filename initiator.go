package multivu

import (
	"context"
	"net"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// greetingPattern extracts the instrument flavor from a START result.
var greetingPattern = regexp.MustCompile(`Connected to (\S+) MultiVuServer`)

// initiator is the client-side state machine: write a request, read the
// response, report it.
type initiator struct {
	*message

	contentType string

	request  *Content
	response *Content

	flavor     string
	serverOpts StartOptions
}

func newInitiator(conn net.Conn, sel *selector, opts *options) *initiator {
	return &initiator{
		message:     newMessage(conn, sel, RoleInitiator, opts),
		contentType: opts.contentType,
	}
}

// queueRequest encodes a request and arms the connection for writing. Only
// one request may be outstanding.
func (i *initiator) queueRequest(action, query string) error {
	if i.request != nil || i.state != StateIdle {
		return ErrRequestInFlight
	}

	req := Content{Action: strings.ToUpper(action), Query: query}
	if err := i.queue(req, i.contentType, EncodingUTF8); err != nil {
		return err
	}
	i.request = &req
	i.response = nil
	return i.sel.modify(i.message, EventWrite)
}

func (i *initiator) processEvents(ctx context.Context, ev readyEvent) (Outcome, error) {
	if ev.mask&EventRead != 0 {
		outcome, err := i.read(ev)
		if err != nil || outcome != Continue {
			return outcome, err
		}
	}
	if ev.mask&EventWrite != 0 {
		return Continue, i.write(ctx)
	}
	return Continue, nil
}

func (i *initiator) write(ctx context.Context) error {
	done, err := i.flush(ctx)
	if err != nil {
		if errors.Is(err, ErrSendFailed) {
			return errors.Wrapf(ErrConnectionLost, "%v", err)
		}
		return err
	}
	if !done {
		return nil
	}

	i.logger.Debug("request sent", "addr", i.peer, "action", i.request.Action)
	i.reset()
	return i.sel.modify(i.message, EventRead)
}

func (i *initiator) read(ev readyEvent) (Outcome, error) {
	if ev.err != nil {
		return Continue, errors.Wrapf(ErrConnectionLost, "%v", ev.err)
	}
	if err := i.buf.onReadable(ev.chunk); err != nil {
		return Continue, errors.Wrapf(ErrConnectionLost, "%v", err)
	}

	ready, err := i.parse()
	if err != nil || !ready {
		return Continue, err
	}
	return i.processResponse()
}

// processResponse hands the decoded frame over as the answer to the
// outstanding request and classifies the round trip.
func (i *initiator) processResponse() (Outcome, error) {
	req, resp := i.request, i.content
	i.rec.FrameReceived(RoleInitiator, resp.Action)

	i.request = nil
	i.reset()
	if err := i.sel.modify(i.message, 0); err != nil {
		return Continue, err
	}

	if req == nil || resp.Action != req.Action {
		return Continue, errors.Wrapf(ErrUnexpectedResponse, "got %q", resp.Action)
	}
	i.response = resp
	i.logger.Debug("response received", "addr", i.peer, "action", resp.Action, "result", resp.Result)

	switch resp.Action {
	case ActionStart:
		if m := greetingPattern.FindStringSubmatch(resp.Result); m != nil {
			i.flavor = m[1]
		}
		i.serverOpts = ParseStartOptions(resp.Query)
	case ActionExit:
		return PeerExiting, nil
	case ActionClose:
		return SelfClosing, nil
	}
	return ResponseReady, nil
}
