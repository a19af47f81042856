// Package config loads the YAML configuration shared by the multivu server
// and client commands. Every value is optional; command-line flags override
// what the file sets.
package config

import (
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Zereker/multivu"
	"github.com/Zereker/multivu/instrument"
)

// Config is the contents of a multivu.yaml file.
type Config struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Flavor      string `yaml:"flavor"`
	Scaffolding bool   `yaml:"scaffolding"`
	Verbose     bool   `yaml:"verbose"`
	Threaded    bool   `yaml:"threaded"`

	PollInterval  Duration `yaml:"poll_interval"`
	SendRetries   int      `yaml:"send_retries"`
	RetryInterval Duration `yaml:"retry_interval"`
	DialTimeout   Duration `yaml:"dial_timeout"`
	ContentType   string   `yaml:"content_type"`

	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// LogConfig selects the log level and encoder.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig enables the metrics HTTP endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DiscoveryConfig controls mDNS advertisement of a running server.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// Duration wraps time.Duration for YAML strings such as "250ms" or "1s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Host:          "0.0.0.0",
		Port:          multivu.DefaultPort,
		Flavor:        string(instrument.PPMS),
		Threaded:      true,
		PollInterval:  Duration{250 * time.Millisecond},
		SendRetries:   3,
		RetryInterval: Duration{time.Second},
		DialTimeout:   Duration{5 * time.Second},
		ContentType:   multivu.ContentTypeJSON,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path on top of Default, expanding ${VAR} references first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("config file not found: %s", path)
		}
		return nil, errors.Wrapf(err, "cannot read config file %q", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), cfg); err != nil {
		return nil, errors.Wrapf(err, "invalid YAML in %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Validate checks value ranges and names and normalizes the flavor.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	flavor, err := instrument.ParseFlavor(c.Flavor)
	if err != nil {
		return err
	}
	c.Flavor = string(flavor)
	if c.SendRetries < 0 {
		return errors.Errorf("send_retries must not be negative, got %d", c.SendRetries)
	}
	switch c.ContentType {
	case "", multivu.ContentTypeJSON, multivu.ContentTypeMsgpack:
	default:
		return errors.Errorf("unsupported content_type %q", c.ContentType)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return errors.Errorf("unsupported log format %q", c.Log.Format)
	}
	return nil
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Options converts the protocol settings into multivu options.
func (c *Config) Options() []multivu.Option {
	return []multivu.Option{
		multivu.PollIntervalOption(c.PollInterval.Duration),
		multivu.SendRetryOption(c.SendRetries, c.RetryInterval.Duration),
		multivu.DialTimeoutOption(c.DialTimeout.Duration),
		multivu.ContentTypeOption(c.ContentType),
		multivu.FlavorOption(c.Flavor),
		multivu.VerboseOption(c.Verbose),
		multivu.ScaffoldingOption(c.Scaffolding),
		multivu.BlockingOption(!c.Threaded),
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} with environment values.
// Unset variables without a default expand to the empty string.
func ExpandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(groups[1]); ok && value != "" {
			return value
		}
		return groups[2]
	})
}
