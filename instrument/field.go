package instrument

import (
	"fmt"
	"math"
)

// FieldApproach selects how the magnet reaches a set point.
type FieldApproach int

const (
	FieldLinear FieldApproach = iota
	FieldNoOvershoot
	FieldOscillate
)

func (a FieldApproach) String() string {
	switch a {
	case FieldLinear:
		return "linear"
	case FieldNoOvershoot:
		return "no_overshoot"
	case FieldOscillate:
		return "oscillate"
	default:
		return fmt.Sprintf("approach(%d)", int(a))
	}
}

// FieldMode selects whether the magnet is left persistent or driven at the
// set point.
type FieldMode int

const (
	FieldPersistent FieldMode = iota
	FieldDriven
)

func (m FieldMode) String() string {
	switch m {
	case FieldPersistent:
		return "persistent"
	case FieldDriven:
		return "driven"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Field state codes.
const (
	FieldStable  = 1
	FieldHolding = 4
	FieldRamping = 6
)

var fieldStates = stateTable{
	1:  "Stable",
	2:  "Switch Warming",
	3:  "Switch Cooling",
	4:  "Holding (driven)",
	5:  "Iterate",
	6:  "Ramping",
	7:  "Ramping",
	8:  "Resetting",
	9:  "Current Error",
	10: "Switch Error",
	11: "Quenching",
	12: "Charging Error",
	14: "PSU Error",
	15: "General Failure",
}

// maxField is the magnet limit in oersted.
var maxField = map[Flavor]float64{
	PPMS:     90000,
	DynaCool: 90000,
	VersaLab: 30000,
	MPMS3:    70000,
	OptiCool: 70000,
}

const maxFieldRate = 700.0

// FieldCommand is the FIELD command. Set queries are
// "setpoint,rate,approach,mode" with rate in Oe/sec.
type FieldCommand struct {
	flavor Flavor
}

// NewFieldCommand returns the FIELD command for flavor.
func NewFieldCommand(flavor Flavor) *FieldCommand {
	return &FieldCommand{flavor: flavor}
}

func (c *FieldCommand) Name() string         { return "FIELD" }
func (c *FieldCommand) Units() string        { return "Oe" }
func (c *FieldCommand) Subsystem() Subsystem { return SubsystemField }

func (c *FieldCommand) DecodeStateCode(code int) (string, error) {
	return fieldStates.decode(c.Name(), code)
}

func (c *FieldCommand) Stable(state string) bool {
	return state == fieldStates[FieldStable] || state == fieldStates[FieldHolding]
}

// PrepareQuery validates a set request and renders its query.
func (c *FieldCommand) PrepareQuery(setpoint, rate float64, approach FieldApproach, mode FieldMode) (string, error) {
	if err := c.validate(setpoint, rate, approach, mode); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s,%s,%d,%d", formatFloat(setpoint), formatFloat(rate), int(approach), int(mode)), nil
}

func (c *FieldCommand) validate(setpoint, rate float64, approach FieldApproach, mode FieldMode) error {
	if limit, ok := maxField[c.flavor]; ok && math.Abs(setpoint) > limit {
		return Errorf("field set point %s Oe exceeds the %s limit of %s Oe", formatFloat(setpoint), c.flavor, formatFloat(limit))
	}
	if rate <= 0 || rate > maxFieldRate {
		return Errorf("field rate %s Oe/sec is outside (0, %s] Oe/sec", formatFloat(rate), formatFloat(maxFieldRate))
	}
	switch approach {
	case FieldLinear, FieldNoOvershoot, FieldOscillate:
	default:
		return Errorf("invalid field approach %d", int(approach))
	}
	switch mode {
	case FieldPersistent:
		if c.flavor == OptiCool {
			return Errorf("%s does not support persistent field mode", c.flavor)
		}
	case FieldDriven:
		if approach == FieldOscillate {
			return Errorf("oscillate approach is not allowed in driven mode")
		}
	default:
		return Errorf("invalid field mode %d", int(mode))
	}
	return nil
}

func (c *FieldCommand) GetState(d Driver, _ string) (Reading, error) {
	value, code, err := d.Field()
	if err != nil {
		return Reading{}, wrapDriver(err, "read field")
	}
	state, err := c.DecodeStateCode(code)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Value: value, Units: c.Units(), State: state}, nil
}

func (c *FieldCommand) SetState(d Driver, query string) error {
	fields, err := splitQuery(c.Name(), query, 4)
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
	mode, err := parseIntArg(c.Name(), "mode", fields[3])
	if err != nil {
		return err
	}
	if err := c.validate(setpoint, rate, FieldApproach(approach), FieldMode(mode)); err != nil {
		return err
	}
	return wrapDriver(d.SetField(setpoint, rate, FieldApproach(approach), FieldMode(mode)), "set field")
}

func (c *FieldCommand) ConvertResult(result string) (Reading, error) {
	return convertResult(c.Name(), result)
}
