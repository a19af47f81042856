package multivu

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Zereker/multivu/instrument"
	"github.com/pkg/errors"
)

// startServer opens a scaffolding server on a random loopback port.
func startServer(t *testing.T, opt ...Option) *Server {
	t.Helper()

	opts := append([]Option{
		LoggerOption(NopLogger()),
		PollIntervalOption(10 * time.Millisecond),
		SendRetryOption(0, time.Millisecond),
		ScaffoldingOption(true),
		DispatcherOption(instrument.NewSimulated(instrument.PPMS)),
	}, opt...)

	server := NewServer("127.0.0.1:0", opts...)
	if err := server.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// rawExchange sends one request over a bare TCP connection and returns the
// response.
func rawExchange(t *testing.T, conn net.Conn, action string) *Content {
	t.Helper()
	writeFrame(t, conn, Content{Action: action}, ContentTypeJSON)
	_, resp := readFrame(t, conn)
	return resp
}

func TestNewServer(t *testing.T) {
	server := NewServer("127.0.0.1:0")

	if server.Addr() != nil {
		t.Error("Addr should be nil before Open")
	}
	if server.Flavor() != defaultFlavor {
		t.Errorf("Flavor = %q, want %q", server.Flavor(), defaultFlavor)
	}
	if server.IsClientConnected() {
		t.Error("IsClientConnected should be false")
	}
	if err := server.Close(); err != nil {
		t.Errorf("Close on unopened server: %v", err)
	}
}

func TestServer_OpenBindError(t *testing.T) {
	first := startServer(t)

	second := NewServer(first.Addr().String(), LoggerOption(NopLogger()))
	err := second.Open(context.Background())

	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("err = %v, want *BindError", err)
	}
	if bindErr.Addr != first.Addr().String() {
		t.Errorf("BindError.Addr = %q", bindErr.Addr)
	}
}

func TestServer_OpenTwice(t *testing.T) {
	server := startServer(t)
	if err := server.Open(context.Background()); !errors.Is(err, ErrServerOpen) {
		t.Errorf("second Open: err = %v, want ErrServerOpen", err)
	}
}

func TestServer_Close(t *testing.T) {
	server := startServer(t)
	addr := server.Addr().String()

	if err := server.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	select {
	case <-server.Done():
	default:
		t.Error("Done not closed after Close")
	}

	if conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err == nil {
		conn.Close()
		t.Error("listener still accepting after Close")
	}
}

func TestServer_StartGreeting(t *testing.T) {
	server := startServer(t, FlavorOption("VersaLab"), VerboseOption(true))

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	resp := rawExchange(t, conn, ActionStart)
	local := conn.LocalAddr().(*net.TCPAddr)
	want := "Connected to VersaLab MultiVuServer at " + formatPeer(local)
	if resp.Result != want {
		t.Errorf("result = %q, want %q", resp.Result, want)
	}
	if resp.Query != "v;s;t" {
		t.Errorf("query = %q, want v;s;t", resp.Query)
	}

	waitUntil(t, "client connected", server.IsClientConnected)
	if server.ClientAddress().String() != local.String() {
		t.Errorf("ClientAddress = %v, want %v", server.ClientAddress(), local)
	}
	if server.SessionID() == "" {
		t.Error("SessionID is empty while connected")
	}
}

func TestServer_ReacceptsAfterPeerDisappears(t *testing.T) {
	server := startServer(t)

	first, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	rawExchange(t, first, ActionStart)
	firstSession := server.SessionID()

	// A second client waits in the backlog until the first one is gone.
	second, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("second Dial failed: %v", err)
	}
	defer second.Close()
	writeFrame(t, second, Content{Action: ActionStart}, ContentTypeJSON)

	_ = second.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var one [1]byte
	if n, _ := second.Read(one[:]); n != 0 {
		t.Fatal("second client served while first still connected")
	}
	_ = second.SetReadDeadline(time.Time{})

	_ = first.Close()

	_, resp := readFrame(t, second)
	if resp.Action != ActionStart {
		t.Errorf("action = %q, want START", resp.Action)
	}
	waitUntil(t, "new session", func() bool {
		id := server.SessionID()
		return id != "" && id != firstSession
	})
}

func TestServer_ExitStopsServer(t *testing.T) {
	server := startServer(t)

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	resp := rawExchange(t, conn, ActionExit)
	if resp.Result != "Closing client and exiting server" {
		t.Errorf("result = %q", resp.Result)
	}

	select {
	case <-server.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("server still running after EXIT")
	}
	if err := server.Wait(); err != nil {
		t.Errorf("Wait = %v, want nil", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(make([]byte, 1)); !errors.Is(err, io.EOF) && !isConnectionLost(err) {
		t.Errorf("connection still open after EXIT: %v", err)
	}
}

func TestServer_CloseKeepsServing(t *testing.T) {
	server := startServer(t)

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	resp := rawExchange(t, conn, ActionClose)
	if resp.Query != ActionClose {
		t.Errorf("query = %q, want CLOSE", resp.Query)
	}
	waitUntil(t, "client dropped", func() bool { return !server.IsClientConnected() })

	again, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	defer again.Close()
	if resp := rawExchange(t, again, ActionStart); resp.Action != ActionStart {
		t.Errorf("action = %q, want START", resp.Action)
	}
}

func TestServer_MalformedFrameDropsClient(t *testing.T) {
	server := startServer(t)

	dropped := make(chan struct{})
	unsubscribe := server.Subscribe(func(connected bool) {
		if !connected {
			close(dropped)
		}
	})
	defer unsubscribe()

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	header := `{"byteorder":"little"}`
	_, _ = conn.Write(append([]byte{0, byte(len(header))}, header...))

	select {
	case <-dropped:
	case <-time.After(3 * time.Second):
		t.Fatal("client not dropped after malformed header")
	}

	select {
	case <-server.Done():
		t.Fatal("server stopped on a malformed frame")
	default:
	}
}

func TestServer_UnrepresentableResponseKeepsServing(t *testing.T) {
	server := startServer(t)

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	// The query decodes to a snowman, which windows-1252 cannot carry back.
	payload := []byte(`{"action":"TEMP?","query":"\u2603","result":""}`)
	header, err := encodeHeader(Header{
		ByteOrder:       "little",
		ContentType:     ContentTypeJSON,
		ContentEncoding: "windows-1252",
		ContentLength:   uint32(len(payload)),
	})
	if err != nil {
		t.Fatalf("encodeHeader failed: %v", err)
	}
	frame := append([]byte{byte(len(header) >> 8), byte(len(header))}, header...)
	if _, err := conn.Write(append(frame, payload...)); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	h, resp := readFrame(t, conn)
	if h.ContentEncoding != EncodingUTF8 {
		t.Errorf("content-encoding = %q, want %q", h.ContentEncoding, EncodingUTF8)
	}
	if resp.Query != "\u2603" {
		t.Errorf("query = %q, want snowman", resp.Query)
	}
	if !strings.HasPrefix(resp.Result, "300,K,") {
		t.Errorf("result = %q", resp.Result)
	}
	_ = conn.Close()

	select {
	case <-server.Done():
		t.Fatalf("server stopped: %v", server.Wait())
	default:
	}

	again, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	defer again.Close()
	if resp := rawExchange(t, again, ActionStart); resp.Action != ActionStart {
		t.Errorf("action = %q, want START", resp.Action)
	}
}

func TestServer_Subscribe(t *testing.T) {
	server := startServer(t)

	changes := make(chan bool, 4)
	unsubscribe := server.Subscribe(func(connected bool) { changes <- connected })
	defer unsubscribe()

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	rawExchange(t, conn, ActionStart)
	_ = conn.Close()

	for _, want := range []bool{true, false} {
		select {
		case got := <-changes:
			if got != want {
				t.Errorf("status = %v, want %v", got, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("no status change, want %v", want)
		}
	}
}

func TestServer_Blocking(t *testing.T) {
	server := NewServer("127.0.0.1:0",
		LoggerOption(NopLogger()),
		PollIntervalOption(10*time.Millisecond),
		BlockingOption(true))

	result := make(chan error, 1)
	go func() { result <- server.Open(context.Background()) }()
	defer server.Close()

	waitUntil(t, "listener bound", func() bool { return server.Addr() != nil })
	if server.StartOptions().Threaded {
		t.Error("blocking server announced threaded")
	}

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	rawExchange(t, conn, ActionExit)

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Open = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("blocking Open did not return after EXIT")
	}
}

func TestServer_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := NewServer("127.0.0.1:0", LoggerOption(NopLogger()), PollIntervalOption(10*time.Millisecond))
	if err := server.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	cancel()
	select {
	case <-server.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("server still running after cancel")
	}
	_ = server.Close()
}
