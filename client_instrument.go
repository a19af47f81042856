package multivu

import (
	"context"
	"time"

	"github.com/Zereker/multivu/instrument"
	"github.com/pkg/errors"
)

// command returns the instrument command for the flavor the server announced.
func (c *Client) command(sub instrument.Subsystem) instrument.Command {
	flavor, err := instrument.ParseFlavor(c.Flavor())
	if err != nil {
		flavor = instrument.PPMS
	}
	for _, cmd := range instrument.Commands(flavor) {
		if cmd.Subsystem() == sub {
			return cmd
		}
	}
	return nil
}

func (c *Client) getReading(ctx context.Context, sub instrument.Subsystem) (instrument.Reading, error) {
	return c.read(ctx, c.command(sub), "")
}

func (c *Client) read(ctx context.Context, cmd instrument.Command, query string) (instrument.Reading, error) {
	result, err := c.QueryServer(ctx, cmd.Name()+"?", query)
	if err != nil {
		return instrument.Reading{}, err
	}
	reading, err := cmd.ConvertResult(result)
	if err != nil {
		return instrument.Reading{}, &SessionError{Kind: Protocol, Msg: "unreadable " + cmd.Name() + " result", Err: err}
	}
	return reading, nil
}

// GetTemperature reads the sample temperature in kelvin.
func (c *Client) GetTemperature(ctx context.Context) (instrument.Reading, error) {
	return c.getReading(ctx, instrument.SubsystemTemperature)
}

// SetTemperature ramps to setpoint kelvin at rate K/min.
func (c *Client) SetTemperature(ctx context.Context, setpoint, rate float64, approach instrument.TemperatureApproach) error {
	cmd := c.command(instrument.SubsystemTemperature).(*instrument.TemperatureCommand)
	query, err := cmd.PrepareQuery(setpoint, rate, approach)
	if err != nil {
		return err
	}
	_, err = c.QueryServer(ctx, cmd.Name(), query)
	return err
}

// GetField reads the magnetic field in oersted.
func (c *Client) GetField(ctx context.Context) (instrument.Reading, error) {
	return c.getReading(ctx, instrument.SubsystemField)
}

// SetField ramps to setpoint oersted at rate Oe/sec.
func (c *Client) SetField(ctx context.Context, setpoint, rate float64, approach instrument.FieldApproach, mode instrument.FieldMode) error {
	cmd := c.command(instrument.SubsystemField).(*instrument.FieldCommand)
	query, err := cmd.PrepareQuery(setpoint, rate, approach, mode)
	if err != nil {
		return err
	}
	_, err = c.QueryServer(ctx, cmd.Name(), query)
	return err
}

// GetChamber reads the sample chamber status.
func (c *Client) GetChamber(ctx context.Context) (instrument.Reading, error) {
	return c.getReading(ctx, instrument.SubsystemChamber)
}

// SetChamber starts a chamber operation.
func (c *Client) SetChamber(ctx context.Context, mode instrument.ChamberMode) error {
	cmd := c.command(instrument.SubsystemChamber).(*instrument.ChamberCommand)
	query, err := cmd.PrepareQuery(mode)
	if err != nil {
		return err
	}
	_, err = c.QueryServer(ctx, cmd.Name(), query)
	return err
}

// GetAuxTemperature reads the auxiliary thermometer of an OptiCool.
func (c *Client) GetAuxTemperature(ctx context.Context) (instrument.Reading, error) {
	if flavor, _ := instrument.ParseFlavor(c.Flavor()); flavor != instrument.OptiCool {
		return instrument.Reading{}, instrument.Errorf("aux temperature requires %s, server is %q", instrument.OptiCool, c.Flavor())
	}
	return c.read(ctx, instrument.NewAuxTemperatureCommand(), "")
}

// GetSDO reads a service data object. The reading has no units; its state
// is the call status.
func (c *Client) GetSDO(ctx context.Context, obj instrument.SdoObject) (instrument.Reading, error) {
	cmd := instrument.NewSdoCommand()
	query, err := cmd.PrepareQuery(obj)
	if err != nil {
		return instrument.Reading{}, err
	}
	return c.read(ctx, cmd, query)
}

// SetSDO writes value to a service data object.
func (c *Client) SetSDO(ctx context.Context, obj instrument.SdoObject, value float64) error {
	cmd := instrument.NewSdoCommand()
	query, err := cmd.PrepareSetQuery(obj, value)
	if err != nil {
		return err
	}
	_, err = c.QueryServer(ctx, cmd.Name(), query)
	return err
}

// WaitFor sleeps for delay and then polls until every subsystem in mask
// reports a stable state. A zero timeout waits indefinitely; otherwise
// ErrWaitTimeout is returned once timeout has passed after the delay.
func (c *Client) WaitFor(ctx context.Context, delay, timeout time.Duration, mask instrument.Subsystem) error {
	if err := sleepContext(ctx, delay); err != nil {
		return err
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	subsystems := []instrument.Subsystem{
		instrument.SubsystemTemperature,
		instrument.SubsystemField,
		instrument.SubsystemChamber,
	}
	for {
		stable := true
		for _, sub := range subsystems {
			if !mask.Has(sub) {
				continue
			}
			reading, err := c.getReading(ctx, sub)
			if err != nil {
				return err
			}
			if !c.command(sub).Stable(reading.State) {
				stable = false
				break
			}
		}
		if stable {
			return nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return errors.Wrapf(ErrWaitTimeout, "%s after %v", mask, timeout)
		}
		if err := sleepContext(ctx, c.opts.pollInterval); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
