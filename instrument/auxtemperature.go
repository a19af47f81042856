package instrument

// AuxTemperatureCommand is the read-only AUXTEMP command, the auxiliary
// thermometer of an OptiCool.
type AuxTemperatureCommand struct{}

// NewAuxTemperatureCommand returns the AUXTEMP command.
func NewAuxTemperatureCommand() *AuxTemperatureCommand {
	return &AuxTemperatureCommand{}
}

func (c *AuxTemperatureCommand) Name() string         { return "AUXTEMP" }
func (c *AuxTemperatureCommand) Units() string        { return "K" }
func (c *AuxTemperatureCommand) Subsystem() Subsystem { return 0 }

func (c *AuxTemperatureCommand) DecodeStateCode(code int) (string, error) {
	return temperatureStates.decode(c.Name(), code)
}

func (c *AuxTemperatureCommand) Stable(state string) bool {
	return state == temperatureStates[TemperatureStable]
}

func (c *AuxTemperatureCommand) GetState(d Driver, _ string) (Reading, error) {
	value, code, err := d.AuxTemperature()
	if err != nil {
		return Reading{}, wrapDriver(err, "read aux temperature")
	}
	state, err := c.DecodeStateCode(code)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Value: value, Units: c.Units(), State: state}, nil
}

func (c *AuxTemperatureCommand) SetState(Driver, string) error {
	return Errorf("%s is read-only", c.Name())
}

func (c *AuxTemperatureCommand) ConvertResult(result string) (Reading, error) {
	return convertResult(c.Name(), result)
}
