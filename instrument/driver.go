package instrument

// Driver is the hardware side of the instrument. Codes are the raw status
// codes reported by MultiVu.
type Driver interface {
	Temperature() (kelvin float64, code int, err error)
	SetTemperature(setpoint, rate float64, approach TemperatureApproach) error

	Field() (oersted float64, code int, err error)
	SetField(setpoint, rate float64, approach FieldApproach, mode FieldMode) error

	Chamber() (code int, err error)
	SetChamber(mode ChamberMode) error

	// AuxTemperature reads the auxiliary thermometer. Only OptiCool has one.
	AuxTemperature() (kelvin float64, code int, err error)

	ReadSDO(obj SdoObject) (value float64, code int, err error)
	WriteSDO(obj SdoObject, value float64) error
}
