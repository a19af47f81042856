package instrument

import (
	"fmt"
	"strconv"
)

// ChamberMode is a sample chamber operation.
type ChamberMode int

const (
	ChamberSeal ChamberMode = iota
	ChamberPurgeSeal
	ChamberVentSeal
	ChamberPumpContinuous
	ChamberVentContinuous
	ChamberHighVacuum
)

var chamberModeNames = []string{
	"seal",
	"purge_seal",
	"vent_seal",
	"pump_continuous",
	"vent_continuous",
	"high_vacuum",
}

func (m ChamberMode) String() string {
	if m < 0 || int(m) >= len(chamberModeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return chamberModeNames[m]
}

// ParseChamberMode accepts a mode name or its number.
func ParseChamberMode(s string) (ChamberMode, error) {
	for i, name := range chamberModeNames {
		if s == name {
			return ChamberMode(i), nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= len(chamberModeNames) {
		return 0, Errorf("invalid chamber mode %q", s)
	}
	return ChamberMode(n), nil
}

// Chamber state codes.
const (
	ChamberUnknown         = 0
	ChamberPurgedSealed    = 1
	ChamberVentedSealed    = 2
	ChamberSealed          = 3
	ChamberPerformingPurge = 4
	ChamberPerformingVent  = 5
	ChamberPreHighVacuum   = 6
	ChamberAtHighVacuum    = 7
	ChamberPumping         = 8
	ChamberFlooding        = 9
	ChamberHighVacuumError = 14
	ChamberGeneralFailure  = 15
)

var chamberStates = stateTable{
	ChamberUnknown:         "Unknown",
	ChamberPurgedSealed:    "Purged and Sealed",
	ChamberVentedSealed:    "Vented and Sealed",
	ChamberSealed:          "Sealed (condition unknown)",
	ChamberPerformingPurge: "Performing Purge/Seal",
	ChamberPerformingVent:  "Performing Vent/Seal",
	ChamberPreHighVacuum:   "Pre-HiVac",
	ChamberAtHighVacuum:    "HiVac",
	ChamberPumping:         "Pumping Continuously",
	ChamberFlooding:        "Flooding Continuously",
	ChamberHighVacuumError: "HiVac Error",
	ChamberGeneralFailure:  "General Failure",
}

var chamberStableCodes = []int{
	ChamberPurgedSealed,
	ChamberVentedSealed,
	ChamberSealed,
	ChamberAtHighVacuum,
	ChamberPumping,
	ChamberFlooding,
}

// ChamberCommand is the CHAMBER command. The set query is the mode number.
// A get reports the state code as the value.
type ChamberCommand struct {
	flavor Flavor
}

// NewChamberCommand returns the CHAMBER command for flavor.
func NewChamberCommand(flavor Flavor) *ChamberCommand {
	return &ChamberCommand{flavor: flavor}
}

func (c *ChamberCommand) Name() string         { return "CHAMBER" }
func (c *ChamberCommand) Units() string        { return "" }
func (c *ChamberCommand) Subsystem() Subsystem { return SubsystemChamber }

func (c *ChamberCommand) DecodeStateCode(code int) (string, error) {
	return chamberStates.decode(c.Name(), code)
}

func (c *ChamberCommand) Stable(state string) bool {
	for _, code := range chamberStableCodes {
		if chamberStates[code] == state {
			return true
		}
	}
	return false
}

// PrepareQuery validates a set request and renders its query.
func (c *ChamberCommand) PrepareQuery(mode ChamberMode) (string, error) {
	if err := c.validate(mode); err != nil {
		return "", err
	}
	return strconv.Itoa(int(mode)), nil
}

func (c *ChamberCommand) validate(mode ChamberMode) error {
	if mode < 0 || int(mode) >= len(chamberModeNames) {
		return Errorf("invalid chamber mode %d", int(mode))
	}
	if c.flavor == OptiCool && mode != ChamberSeal && mode != ChamberPumpContinuous {
		return Errorf("%s does not support chamber mode %s", c.flavor, mode)
	}
	return nil
}

func (c *ChamberCommand) GetState(d Driver, _ string) (Reading, error) {
	code, err := d.Chamber()
	if err != nil {
		return Reading{}, wrapDriver(err, "read chamber")
	}
	state, err := c.DecodeStateCode(code)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Value: float64(code), Units: c.Units(), State: state}, nil
}

func (c *ChamberCommand) SetState(d Driver, query string) error {
	fields, err := splitQuery(c.Name(), query, 1)
	if err != nil {
		return err
	}
	mode, err := ParseChamberMode(fields[0])
	if err != nil {
		return err
	}
	if err := c.validate(mode); err != nil {
		return err
	}
	return wrapDriver(d.SetChamber(mode), "set chamber")
}

func (c *ChamberCommand) ConvertResult(result string) (Reading, error) {
	return convertResult(c.Name(), result)
}
