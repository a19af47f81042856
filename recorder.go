package multivu

// Role identifies which side of an exchange a connection plays.
type Role int

const (
	// RoleResponder is the server side: it reads a request and writes a response.
	RoleResponder Role = iota
	// RoleInitiator is the client side: it writes a request and reads a response.
	RoleInitiator
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Recorder receives protocol events for instrumentation. The metrics package
// provides a Prometheus implementation.
type Recorder interface {
	FrameReceived(role Role, action string)
	FrameSent(role Role, action string, bytes int)
	SendRetry(role Role)
	DomainError(action string)
	ConnectionChanged(connected bool)
}

type nopRecorder struct{}

func (nopRecorder) FrameReceived(Role, string)  {}
func (nopRecorder) FrameSent(Role, string, int) {}
func (nopRecorder) SendRetry(Role)              {}
func (nopRecorder) DomainError(string)          {}
func (nopRecorder) ConnectionChanged(bool)      {}
