package aquad

import (
	"fmt"

	"github.com/mdouchement/aquad/aquacomputer"
)

// AquaCooler adapts an Aquacomputer device to the control loop: speeds come
// from the telemetry snapshot, setpoints go through a control transaction.
type AquaCooler struct {
	device *aquacomputer.Device
}

func NewAquaCooler(device *aquacomputer.Device) *AquaCooler {
	return &AquaCooler{device: device}
}

func (c *AquaCooler) Speeds() (map[Channel]uint16, error) {
	snap, err := c.device.Telemetry()
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	speeds := make(map[Channel]uint16, len(snap.Fans))
	for i, fan := range snap.Fans {
		speeds[Channel(i)] = fan.Speed
	}

	return speeds, nil
}

// SetPWM takes a percentage in [0,100] like the curve configs express it.
func (c *AquaCooler) SetPWM(ch Channel, pwm int) (int, error) {
	if pwm < 0 || pwm > 100 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPWM, pwm)
	}

	if err := c.device.SetFanPower(int(ch), uint16(pwm)*100); err != nil {
		return 0, fmt.Errorf("fan%d: %w", ch+1, err)
	}

	return pwm, nil
}
