// Package instrument executes MultiVu commands for the server. An action
// ending in "?" reads a subsystem and answers "value,units,state"; any other
// action sets it and answers "<ACTION> Command Received". Failures are
// returned as *Error so their text can travel back to the client.
package instrument

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrNoDriver is returned by New when no driver is supplied.
var ErrNoDriver = errors.New("instrument driver is required")

// Instrument binds the commands of one flavor to a driver.
type Instrument struct {
	flavor   Flavor
	driver   Driver
	commands map[string]Command
}

// New returns an instrument of the given flavor backed by driver.
func New(flavor Flavor, driver Driver) (*Instrument, error) {
	if driver == nil {
		return nil, ErrNoDriver
	}

	in := &Instrument{
		flavor:   flavor,
		driver:   driver,
		commands: make(map[string]Command),
	}
	for _, cmd := range Commands(flavor) {
		in.commands[cmd.Name()] = cmd
	}
	return in, nil
}

// NewSimulated returns an instrument backed by a Simulator, for running a
// server without hardware.
func NewSimulated(flavor Flavor, opts ...SimulatorOption) *Instrument {
	in, _ := New(flavor, NewSimulator(opts...))
	return in
}

// Commands returns the commands available on flavor.
func Commands(flavor Flavor) []Command {
	cmds := []Command{
		NewTemperatureCommand(flavor),
		NewFieldCommand(flavor),
		NewChamberCommand(flavor),
		NewSdoCommand(),
	}
	if flavor == OptiCool {
		cmds = append(cmds, NewAuxTemperatureCommand())
	}
	return cmds
}

// Flavor returns the instrument flavor.
func (in *Instrument) Flavor() Flavor {
	return in.flavor
}

// Command looks up a command by name, ignoring case and a trailing "?".
func (in *Instrument) Command(name string) (Command, bool) {
	cmd, ok := in.commands[strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(name)), "?")]
	return cmd, ok
}

// Dispatch runs one request.
func (in *Instrument) Dispatch(action, query string) (string, error) {
	name := strings.ToUpper(strings.TrimSpace(action))
	get := strings.HasSuffix(name, "?")
	name = strings.TrimSuffix(name, "?")

	cmd, ok := in.commands[name]
	if !ok {
		return "", Errorf("Unknown command: %s", action)
	}

	if get {
		reading, err := cmd.GetState(in.driver, query)
		if err != nil {
			return "", err
		}
		return reading.String(), nil
	}

	if err := cmd.SetState(in.driver, query); err != nil {
		return "", err
	}
	return name + " Command Received", nil
}
