package instrument

import "fmt"

// TemperatureApproach selects how the temperature controller reaches a set point.
type TemperatureApproach int

const (
	TemperatureFastSettle TemperatureApproach = iota
	TemperatureNoOvershoot
)

func (a TemperatureApproach) String() string {
	switch a {
	case TemperatureFastSettle:
		return "fast_settle"
	case TemperatureNoOvershoot:
		return "no_overshoot"
	default:
		return fmt.Sprintf("approach(%d)", int(a))
	}
}

// Temperature state codes.
const (
	TemperatureStable   = 1
	TemperatureTracking = 2
	TemperatureNear     = 5
	TemperatureChasing  = 6
)

var temperatureStates = stateTable{
	1:  "Stable",
	2:  "Tracking",
	5:  "Near",
	6:  "Chasing",
	7:  "Pot Operation",
	10: "Standby",
	13: "Diagnostic",
	14: "Impedance Control Error",
	15: "General Failure",
}

const (
	maxTemperature     = 400.0
	maxTemperatureRate = 50.0
)

// TemperatureCommand is the TEMP command. Set queries are
// "setpoint,rate,approach" with rate in K/min.
type TemperatureCommand struct {
	flavor Flavor
}

// NewTemperatureCommand returns the TEMP command for flavor.
func NewTemperatureCommand(flavor Flavor) *TemperatureCommand {
	return &TemperatureCommand{flavor: flavor}
}

func (c *TemperatureCommand) Name() string         { return "TEMP" }
func (c *TemperatureCommand) Units() string        { return "K" }
func (c *TemperatureCommand) Subsystem() Subsystem { return SubsystemTemperature }

func (c *TemperatureCommand) DecodeStateCode(code int) (string, error) {
	return temperatureStates.decode(c.Name(), code)
}

func (c *TemperatureCommand) Stable(state string) bool {
	return state == temperatureStates[TemperatureStable]
}

// PrepareQuery validates a set request and renders its query.
func (c *TemperatureCommand) PrepareQuery(setpoint, rate float64, approach TemperatureApproach) (string, error) {
	if err := c.validate(setpoint, rate, approach); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s,%s,%d", formatFloat(setpoint), formatFloat(rate), int(approach)), nil
}

func (c *TemperatureCommand) validate(setpoint, rate float64, approach TemperatureApproach) error {
	if setpoint < 0 || setpoint > maxTemperature {
		return Errorf("temperature set point %s K is outside 0 to %s K", formatFloat(setpoint), formatFloat(maxTemperature))
	}
	if rate <= 0 || rate > maxTemperatureRate {
		return Errorf("temperature rate %s K/min is outside (0, %s] K/min", formatFloat(rate), formatFloat(maxTemperatureRate))
	}
	if approach != TemperatureFastSettle && approach != TemperatureNoOvershoot {
		return Errorf("invalid temperature approach %d", int(approach))
	}
	return nil
}

func (c *TemperatureCommand) GetState(d Driver, _ string) (Reading, error) {
	value, code, err := d.Temperature()
	if err != nil {
		return Reading{}, wrapDriver(err, "read temperature")
	}
	state, err := c.DecodeStateCode(code)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Value: value, Units: c.Units(), State: state}, nil
}

func (c *TemperatureCommand) SetState(d Driver, query string) error {
	fields, err := splitQuery(c.Name(), query, 3)
	if err != nil {
		return err
	}
	setpoint, err := parseFloatArg(c.Name(), "set point", fields[0])
	if err != nil {
		return err
	}
	rate, err := parseFloatArg(c.Name(), "rate", fields[1])
	if err != nil {
		return err
	}
	approach, err := parseIntArg(c.Name(), "approach", fields[2])
	if err != nil {
		return err
	}
	if err := c.validate(setpoint, rate, TemperatureApproach(approach)); err != nil {
		return err
	}
	return wrapDriver(d.SetTemperature(setpoint, rate, TemperatureApproach(approach)), "set temperature")
}

func (c *TemperatureCommand) ConvertResult(result string) (Reading, error) {
	return convertResult(c.Name(), result)
}
