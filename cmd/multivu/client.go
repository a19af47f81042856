package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/Zereker/multivu"
	"github.com/Zereker/multivu/instrument"
)

func clientCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{
			Name:  "content-type",
			Usage: "request content type: text/json or binary/msgpack",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "bound of one request (0 waits indefinitely)",
			Value: 30 * time.Second,
		},
		&cli.BoolFlag{
			Name:  "shutdown",
			Usage: "ask the server to exit after the request",
		},
	)

	return &cli.Command{
		Name:      "client",
		Usage:     "Send requests to a MultiVu server",
		ArgsUsage: "[ACTION [QUERY]]",
		Description: "With an action, send one request and print the result.\n" +
			"Without one, start an interactive console.",
		Flags:  flags,
		Action: clientAction,
	}
}

func clientAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if !c.IsSet("host") && (cfg.Host == "" || cfg.Host == "0.0.0.0") {
		cfg.Host = "localhost"
	}
	if c.IsSet("content-type") {
		cfg.ContentType = c.String("content-type")
		if err := cfg.Validate(); err != nil {
			return cli.Exit(err.Error(), 2)
		}
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client := multivu.NewClient(cfg.Address(), append(cfg.Options(), multivu.LoggerOption(logger))...)
	if err := client.Open(c.Context); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	s := &session{client: client, timeout: c.Duration("timeout"), out: c.App.Writer}

	if c.Args().Present() {
		err := s.run(c.Context, c.Args().First(), strings.Join(c.Args().Tail(), " "))
		if c.Bool("shutdown") {
			return finish(err, client.CloseServer())
		}
		return finish(err, client.Close())
	}

	if isTerminal() {
		err = s.console(c.Context)
	} else {
		err = s.script(c.Context, os.Stdin)
	}
	if !client.IsConnected() {
		return err
	}
	if c.Bool("shutdown") {
		return finish(err, client.CloseServer())
	}
	return finish(err, client.Close())
}

func finish(err, closeErr error) error {
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if closeErr != nil {
		return cli.Exit(closeErr.Error(), 1)
	}
	return nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// session runs console lines against one client.
type session struct {
	client  *multivu.Client
	timeout time.Duration
	out     io.Writer
}

// run sends one request and prints its result. Command errors are printed
// and do not end the session.
func (s *session) run(ctx context.Context, action, query string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.client.QueryServer(ctx, action, query)
	switch {
	case err == nil:
		fmt.Fprintln(s.out, result)
		return nil
	case multivu.IsSessionError(err, multivu.Remote):
		fmt.Fprintln(s.out, result)
		return nil
	case multivu.IsSessionError(err, multivu.ClientClosed), multivu.IsSessionError(err, multivu.ServerExited):
		fmt.Fprintln(s.out, result)
		return nil
	default:
		return err
	}
}

const consoleHelp = `Commands:
  <ACTION> [QUERY]   send a request, e.g. "TEMP?" or "TEMP 300,10,0"
  wait [MASK] [SECS] wait until subsystems settle (1 temp, 2 field, 4 chamber)
  status             show the server flavor and options
  help               show this help
  quit               disconnect and leave the console
`

// line handles one console line. done reports that the console should end.
func (s *session) line(ctx context.Context, line string) (done bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false, nil
	}

	action, query, _ := strings.Cut(line, " ")
	switch strings.ToLower(action) {
	case "quit", "\\q":
		return true, nil
	case "help", "?":
		fmt.Fprint(s.out, consoleHelp)
		return false, nil
	case "status":
		fmt.Fprintf(s.out, "flavor=%s options=%q\n", s.client.Flavor(), s.client.ServerOptions().String())
		return false, nil
	case "wait":
		return false, s.wait(ctx, strings.Fields(query))
	}

	if err := s.run(ctx, action, strings.TrimSpace(query)); err != nil {
		return true, err
	}
	return !s.client.IsConnected(), nil
}

func (s *session) wait(ctx context.Context, args []string) error {
	mask := instrument.SubsystemAll
	var timeout time.Duration
	if len(args) > 0 {
		var n int
		if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n <= 0 || n > int(instrument.SubsystemAll) {
			fmt.Fprintf(s.out, "invalid mask %q\n", args[0])
			return nil
		}
		mask = instrument.Subsystem(n)
	}
	if len(args) > 1 {
		var secs float64
		if _, err := fmt.Sscanf(args[1], "%g", &secs); err != nil || secs < 0 {
			fmt.Fprintf(s.out, "invalid timeout %q\n", args[1])
			return nil
		}
		timeout = time.Duration(secs * float64(time.Second))
	}

	err := s.client.WaitFor(ctx, 0, timeout, mask)
	switch {
	case err == nil:
		fmt.Fprintf(s.out, "%s stable\n", mask)
		return nil
	case multivu.IsSessionError(err, multivu.Remote):
		fmt.Fprintln(s.out, err)
		return nil
	default:
		if multivu.IsSessionError(err, multivu.ConnectionLost) || multivu.IsSessionError(err, multivu.Protocol) {
			return err
		}
		fmt.Fprintln(s.out, err)
		return nil
	}
}

// console runs an interactive readline loop.
func (s *session) console(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("multivu(%s)> ", s.client.Flavor()),
		HistoryFile:     historyFile(),
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintf(rl.Stdout(), "Connected to %s server. Type \"help\" for commands.\n", s.client.Flavor())
	s.out = rl.Stdout()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		done, err := s.line(ctx, line)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// script runs lines from a non-interactive reader.
func (s *session) script(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		done, err := s.line(ctx, scanner.Text())
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return scanner.Err()
}

func completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, cmd := range instrument.Commands(instrument.PPMS) {
		items = append(items, readline.PcItem(cmd.Name()), readline.PcItem(cmd.Name()+"?"))
	}
	for _, local := range []string{"wait", "status", "help", "quit", multivu.ActionExit} {
		items = append(items, readline.PcItem(local))
	}
	return readline.NewPrefixCompleter(items...)
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".multivu_history")
}
