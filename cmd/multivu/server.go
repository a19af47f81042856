package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/multivu"
	"github.com/Zereker/multivu/discovery"
	"github.com/Zereker/multivu/instrument"
	"github.com/Zereker/multivu/metrics"
)

func serverCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{
			Name:  "flavor",
			Usage: "instrument flavor: PPMS, DynaCool, VersaLab, MPMS3 or OptiCool",
		},
		&cli.BoolFlag{
			Name:    "scaffolding",
			Aliases: []string{"s"},
			Usage:   "answer from a simulated instrument",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "announce verbose mode and log at debug level",
		},
		&cli.BoolFlag{
			Name:  "threaded",
			Usage: "run the event loop on its own goroutine",
			Value: true,
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "serve /metrics and /status on this address",
		},
		&cli.BoolFlag{
			Name:  "advertise",
			Usage: "advertise the server over mDNS",
		},
		&cli.StringFlag{
			Name:  "instance",
			Usage: "mDNS instance name (default: host name)",
		},
	)

	return &cli.Command{
		Name:   "server",
		Usage:  "Run a MultiVu server",
		Flags:  flags,
		Action: serverAction,
	}
}

func serverAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("flavor") {
		cfg.Flavor = c.String("flavor")
	}
	if c.IsSet("scaffolding") {
		cfg.Scaffolding = c.Bool("scaffolding")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
		if cfg.Verbose {
			cfg.Log.Level = "debug"
		}
	}
	if c.IsSet("threaded") {
		cfg.Threaded = c.Bool("threaded")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if c.IsSet("advertise") {
		cfg.Discovery.Enabled = c.Bool("advertise")
	}
	if c.IsSet("instance") {
		cfg.Discovery.Instance = c.String("instance")
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.Scaffolding {
		return cli.Exit("no instrument driver is linked into this binary; run with --scaffolding", 2)
	}
	flavor, _ := instrument.ParseFlavor(cfg.Flavor)
	inst := instrument.NewSimulated(flavor)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(
		metrics.RegistererOption(reg),
		metrics.ConstLabelsOption(prometheus.Labels{"flavor": cfg.Flavor}),
	)

	opts := append(cfg.Options(),
		multivu.LoggerOption(logger),
		multivu.RecorderOption(collector),
		multivu.DispatcherOption(inst),
	)
	srv := multivu.NewServer(cfg.Address(), opts...)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		handler := metrics.Handler(srv, reg)
		group.Go(func() error {
			logger.Info("metrics endpoint started", "addr", cfg.Metrics.Addr)
			return metrics.Serve(gctx, cfg.Metrics.Addr, handler)
		})
	}

	if cfg.Discovery.Enabled {
		adv, err := advertise(cfg.Address(), cfg.Discovery.Instance, cfg.Flavor, srv)
		if err != nil {
			logger.Warn("mDNS advertisement disabled", "error", err)
		} else {
			defer func() { _ = adv.Shutdown() }()
		}
	}

	group.Go(func() error {
		defer cancel()
		if err := srv.Open(gctx); err != nil {
			var bindErr *multivu.BindError
			if errors.As(err, &bindErr) {
				return cli.Exit(bindErr.Error(), 1)
			}
			return err
		}
		return srv.Wait()
	})

	err = group.Wait()
	if closeErr := srv.Close(); err == nil {
		err = closeErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func advertise(addr, instance, flavor string, srv *multivu.Server) (*discovery.Advertiser, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve advertised address")
	}
	return discovery.Advertise(discovery.Announcement{
		Instance: instance,
		Addr:     tcpAddr,
		Flavor:   flavor,
		Options:  srv.StartOptions().String(),
		Version:  version,
	})
}
