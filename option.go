package multivu

import (
	"time"
)

// Default configuration values.
const (
	// DefaultPort is the TCP port the server listens on.
	DefaultPort = 5000
	// defaultPollInterval bounds one readiness poll.
	defaultPollInterval = 250 * time.Millisecond
	// defaultSendWindow bounds one socket write.
	defaultSendWindow = 10 * time.Millisecond
	// defaultSendRetries is how many times a failed send is retried.
	defaultSendRetries = 3
	// defaultRetryInterval is the pause between send retries.
	defaultRetryInterval = time.Second
	// defaultDialTimeout bounds the client's connection attempt.
	defaultDialTimeout = 5 * time.Second
	// defaultFlavor is reported in the START greeting when none is configured.
	defaultFlavor = "PPMS"
)

// Dispatcher executes every non-reserved action on behalf of the server.
// An error is reported to the client as the result text; it never breaks the
// connection.
type Dispatcher interface {
	Dispatch(action, query string) (string, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(action, query string) (string, error)

// Dispatch calls f(action, query).
func (f DispatcherFunc) Dispatch(action, query string) (string, error) {
	return f(action, query)
}

// options holds the configuration shared by Server and Client.
type options struct {
	logger   Logger
	recorder Recorder

	pollInterval  time.Duration // bound of one readiness poll
	sendWindow    time.Duration // bound of one socket write
	sendRetries   int           // retries after a failed send
	retryInterval time.Duration // pause between retries
	dialTimeout   time.Duration // client connect timeout

	contentType string // client request content type

	// server only
	dispatcher  Dispatcher
	flavor      string
	verbose     bool
	scaffolding bool
	blocking    bool // run the monitor on the caller's goroutine
}

// Option configures a Server or a Client.
type Option func(*options)

// checkOptions fills in defaults for unset options.
func checkOptions(opts *options) {
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
	if opts.recorder == nil {
		opts.recorder = nopRecorder{}
	}
	if opts.pollInterval <= 0 {
		opts.pollInterval = defaultPollInterval
	}
	if opts.sendWindow <= 0 {
		opts.sendWindow = defaultSendWindow
	}
	if opts.sendRetries < 0 {
		opts.sendRetries = 0
	}
	if opts.retryInterval <= 0 {
		opts.retryInterval = defaultRetryInterval
	}
	if opts.dialTimeout <= 0 {
		opts.dialTimeout = defaultDialTimeout
	}
	if opts.contentType == "" {
		opts.contentType = ContentTypeJSON
	}
	if opts.flavor == "" {
		opts.flavor = defaultFlavor
	}
}

func newOptions(opt []Option) options {
	opts := options{sendRetries: defaultSendRetries}
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)
	return opts
}

// LoggerOption sets the logger. The default is slog.Default().
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// RecorderOption sets the instrumentation sink.
func RecorderOption(recorder Recorder) Option {
	return func(o *options) {
		o.recorder = recorder
	}
}

// PollIntervalOption bounds a single readiness poll. Shorter intervals make
// the loop notice cancellation sooner.
func PollIntervalOption(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// SendWindowOption bounds a single socket write.
func SendWindowOption(d time.Duration) Option {
	return func(o *options) {
		o.sendWindow = d
	}
}

// SendRetryOption sets how often a failed send is retried and the pause
// between attempts.
func SendRetryOption(retries int, interval time.Duration) Option {
	return func(o *options) {
		o.sendRetries = retries
		o.retryInterval = interval
	}
}

// DialTimeoutOption bounds the client's connection attempt.
func DialTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

// ContentTypeOption selects the content type of client requests. The server
// answers in the content type of each request.
func ContentTypeOption(contentType string) Option {
	return func(o *options) {
		o.contentType = contentType
	}
}

// DispatcherOption sets the command dispatcher of a server.
func DispatcherOption(d Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// FlavorOption sets the instrument flavor announced in the START greeting.
func FlavorOption(flavor string) Option {
	return func(o *options) {
		o.flavor = flavor
	}
}

// VerboseOption marks the server as verbose in the START options.
func VerboseOption(verbose bool) Option {
	return func(o *options) {
		o.verbose = verbose
	}
}

// ScaffoldingOption marks the server as running against a simulated
// instrument in the START options.
func ScaffoldingOption(scaffolding bool) Option {
	return func(o *options) {
		o.scaffolding = scaffolding
	}
}

// BlockingOption makes Server.Open run the monitor loop on the caller's
// goroutine until the server stops, instead of on its own goroutine.
func BlockingOption(blocking bool) Option {
	return func(o *options) {
		o.blocking = blocking
	}
}
