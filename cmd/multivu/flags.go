package main

import (
	"github.com/urfave/cli/v2"

	"github.com/Zereker/multivu/config"
	"github.com/Zereker/multivu/logging"
)

// commonFlags are accepted by every networked command.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a multivu.yaml file",
			EnvVars: []string{"MULTIVU_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "host",
			Usage: "server host",
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "server port",
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "upper bound of one readiness poll",
		},
		&cli.IntFlag{
			Name:  "send-retries",
			Usage: "retries after a failed send",
		},
		&cli.DurationFlag{
			Name:  "retry-interval",
			Usage: "pause between send retries",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "json or console",
		},
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, cli.Exit(err.Error(), 2)
		}
		cfg = loaded
	}

	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("poll-interval") {
		cfg.PollInterval.Duration = c.Duration("poll-interval")
	}
	if c.IsSet("send-retries") {
		cfg.SendRetries = c.Int("send-retries")
	}
	if c.IsSet("retry-interval") {
		cfg.RetryInterval.Duration = c.Duration("retry-interval")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}

	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	return logger, nil
}
