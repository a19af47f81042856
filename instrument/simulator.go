package instrument

import (
	"math"
	"sync"
	"time"
)

const (
	defaultTemperature   = 300.0
	defaultChamberSettle = 5 * time.Second

	auxTemperatureOffset = 0.5
)

// ramp moves a value linearly toward a target.
type ramp struct {
	start  float64
	target float64
	rate   float64 // units per second
	since  time.Time
}

func (r ramp) value(now time.Time) float64 {
	span := r.target - r.start
	if r.rate <= 0 {
		return r.target
	}
	moved := r.rate * now.Sub(r.since).Seconds()
	if moved >= math.Abs(span) {
		return r.target
	}
	return r.start + math.Copysign(moved, span)
}

func (r ramp) done(now time.Time) bool {
	return r.value(now) == r.target
}

// Simulator is a Driver with no hardware behind it. Set points are reached
// by linear ramps in wall-clock time; chamber operations settle after a
// fixed delay.
type Simulator struct {
	mu  sync.Mutex
	now func() time.Time

	temperature ramp

	field     ramp
	fieldMode FieldMode

	chamberMode   ChamberMode
	chamberSince  time.Time
	chamberSettle time.Duration

	sdo map[SdoObject]float64
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// ClockOption replaces time.Now.
func ClockOption(now func() time.Time) SimulatorOption {
	return func(s *Simulator) {
		s.now = now
	}
}

// ChamberSettleOption sets how long a chamber operation stays in its
// transitional state.
func ChamberSettleOption(d time.Duration) SimulatorOption {
	return func(s *Simulator) {
		s.chamberSettle = d
	}
}

// NewSimulator returns a simulator at room temperature, zero field and a
// sealed chamber.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		now:           time.Now,
		chamberSettle: defaultChamberSettle,
	}
	for _, opt := range opts {
		opt(s)
	}

	now := s.now()
	s.temperature = ramp{start: defaultTemperature, target: defaultTemperature, since: now}
	s.field = ramp{since: now}
	s.chamberMode = ChamberSeal
	s.chamberSince = now
	s.sdo = make(map[SdoObject]float64)
	return s
}

func (s *Simulator) Temperature() (float64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.temperature.done(now) {
		return s.temperature.target, TemperatureStable, nil
	}
	return s.temperature.value(now), TemperatureChasing, nil
}

func (s *Simulator) SetTemperature(setpoint, rate float64, _ TemperatureApproach) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.temperature = ramp{
		start:  s.temperature.value(now),
		target: setpoint,
		rate:   rate / 60,
		since:  now,
	}
	return nil
}

func (s *Simulator) Field() (float64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.field.done(now) {
		return s.field.value(now), FieldRamping, nil
	}
	if s.fieldMode == FieldDriven {
		return s.field.target, FieldHolding, nil
	}
	return s.field.target, FieldStable, nil
}

func (s *Simulator) SetField(setpoint, rate float64, _ FieldApproach, mode FieldMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.field = ramp{
		start:  s.field.value(now),
		target: setpoint,
		rate:   rate,
		since:  now,
	}
	s.fieldMode = mode
	return nil
}

func (s *Simulator) Chamber() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settled := s.now().Sub(s.chamberSince) >= s.chamberSettle
	switch s.chamberMode {
	case ChamberPurgeSeal:
		if !settled {
			return ChamberPerformingPurge, nil
		}
		return ChamberPurgedSealed, nil
	case ChamberVentSeal:
		if !settled {
			return ChamberPerformingVent, nil
		}
		return ChamberVentedSealed, nil
	case ChamberHighVacuum:
		if !settled {
			return ChamberPreHighVacuum, nil
		}
		return ChamberAtHighVacuum, nil
	case ChamberPumpContinuous:
		return ChamberPumping, nil
	case ChamberVentContinuous:
		return ChamberFlooding, nil
	default:
		return ChamberSealed, nil
	}
}

func (s *Simulator) SetChamber(mode ChamberMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chamberMode = mode
	s.chamberSince = s.now()
	return nil
}

// AuxTemperature reports the sample temperature shifted by a fixed offset.
func (s *Simulator) AuxTemperature() (float64, int, error) {
	kelvin, code, err := s.Temperature()
	return kelvin + auxTemperatureOffset, code, err
}

// ReadSDO returns the last value written to obj, zero if none was.
func (s *Simulator) ReadSDO(obj SdoObject) (float64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sdo[obj], SdoSuccess, nil
}

func (s *Simulator) WriteSDO(obj SdoObject, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sdo[obj] = value
	return nil
}
