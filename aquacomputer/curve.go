package aquacomputer

import "fmt"

// CurvePoints is the number of (temperature, power) pairs per channel.
const CurvePoints = 16

// FanCurvePoint is one curve entry: Temp in centi-degrees, Power in
// percent*100. Ordering is the caller's business; the firmware interprets
// whatever is stored.
type FanCurvePoint struct {
	Temp  uint16 `json:"temp"`
	Power uint16 `json:"power"`
}

// FanCurve is one channel's complete curve configuration.
type FanCurve struct {
	Points        [CurvePoints]FanCurvePoint `json:"points"`
	MinPower      uint16                     `json:"min_power"`
	MaxPower      uint16                     `json:"max_power"`
	FallbackPower uint16                     `json:"fallback_power"`
	StartBoost    bool                       `json:"start_boost"`
	HoldMinPower  bool                       `json:"hold_min_power"`
}

func (p *DeviceProfile) curveLayout(channel int) (*CurveLayout, error) {
	if channel < 0 || channel >= len(p.Curves) {
		return nil, fmt.Errorf("%w: no curve on channel %d of %s", ErrUnsupported, channel, p.Name)
	}
	return &p.Curves[channel], nil
}

// FanCurve reads one channel's whole curve in a single control fetch.
func (d *Device) FanCurve(channel int) (*FanCurve, error) {
	layout, err := d.profile.curveLayout(channel)
	if err != nil {
		return nil, err
	}

	image, err := d.session.FetchControlImage()
	if err != nil {
		return nil, err
	}

	c := &FanCurve{}
	for i := range c.Points {
		c.Points[i].Temp = be16(image, layout.TempBase+i*2)
		c.Points[i].Power = be16(image, layout.PowerBase+i*2)
	}
	if layout.MinPower >= 0 {
		c.MinPower = be16(image, layout.MinPower)
	}
	if layout.MaxPower >= 0 {
		c.MaxPower = be16(image, layout.MaxPower)
	}
	if layout.FallbackPower >= 0 {
		c.FallbackPower = be16(image, layout.FallbackPower)
	}
	if layout.FlagsOffset >= 0 {
		flags := uint32(image[layout.FlagsOffset])
		c.StartBoost = GetBit(flags, layout.StartBoostBit) == 1
		c.HoldMinPower = GetBit(flags, layout.HoldMinBit) == 1
	}
	return c, nil
}

// SetFanCurve writes one channel's whole curve as a single transaction.
func (d *Device) SetFanCurve(channel int, c *FanCurve) error {
	layout, err := d.profile.curveLayout(channel)
	if err != nil {
		return err
	}
	for _, power := range []uint16{c.MinPower, c.MaxPower, c.FallbackPower} {
		if power > 10000 {
			return fmt.Errorf("%w: power %d above 100%%", ErrOutOfRange, power)
		}
	}
	for _, point := range c.Points {
		if point.Power > 10000 {
			return fmt.Errorf("%w: curve power %d above 100%%", ErrOutOfRange, point.Power)
		}
	}
	if (c.StartBoost || c.HoldMinPower) && layout.FlagsOffset < 0 {
		return fmt.Errorf("%w: channel %d of %s has no boost parameters", ErrUnsupported, channel, d.profile.Name)
	}

	return d.session.Update(func(image []byte) error {
		patches := make([]Patch, 0, CurvePoints*2+3)
		for i, point := range c.Points {
			patches = append(patches,
				Patch{Offset: layout.TempBase + i*2, Value: point.Temp, Width: Width16BE},
				Patch{Offset: layout.PowerBase + i*2, Value: point.Power, Width: Width16BE},
			)
		}
		if layout.MinPower >= 0 {
			patches = append(patches, Patch{Offset: layout.MinPower, Value: c.MinPower, Width: Width16BE})
		}
		if layout.MaxPower >= 0 {
			patches = append(patches, Patch{Offset: layout.MaxPower, Value: c.MaxPower, Width: Width16BE})
		}
		if layout.FallbackPower >= 0 {
			patches = append(patches, Patch{Offset: layout.FallbackPower, Value: c.FallbackPower, Width: Width16BE})
		}
		if err := ApplyPatches(image, patches...); err != nil {
			return err
		}

		if layout.FlagsOffset >= 0 {
			flags := uint32(image[layout.FlagsOffset])
			flags = SetBit(flags, layout.StartBoostBit, bit(c.StartBoost))
			flags = SetBit(flags, layout.HoldMinBit, bit(c.HoldMinPower))
			image[layout.FlagsOffset] = byte(flags)
		}
		return nil
	})
}

// SetFanCurvePoint rewrites a single (temperature, power) pair.
func (d *Device) SetFanCurvePoint(channel, index int, point FanCurvePoint) error {
	layout, err := d.profile.curveLayout(channel)
	if err != nil {
		return err
	}
	if index < 0 || index >= CurvePoints {
		return fmt.Errorf("%w: curve point %d", ErrOutOfRange, index)
	}
	if point.Power > 10000 {
		return fmt.Errorf("%w: curve power %d above 100%%", ErrOutOfRange, point.Power)
	}

	return d.session.WriteFields(
		Patch{Offset: layout.TempBase + index*2, Value: point.Temp, Width: Width16BE},
		Patch{Offset: layout.PowerBase + index*2, Value: point.Power, Width: Width16BE},
	)
}

// SetStartBoost toggles the start boost bit of one channel. Channels
// without the parameter reject the write before any device I/O.
func (d *Device) SetStartBoost(channel int, on bool) error {
	return d.setCurveFlag(channel, on, func(l *CurveLayout) uint8 { return l.StartBoostBit })
}

// SetHoldMinPower toggles the hold-minimum-power bit of one channel.
func (d *Device) SetHoldMinPower(channel int, on bool) error {
	return d.setCurveFlag(channel, on, func(l *CurveLayout) uint8 { return l.HoldMinBit })
}

func (d *Device) setCurveFlag(channel int, on bool, bitOf func(*CurveLayout) uint8) error {
	layout, err := d.profile.curveLayout(channel)
	if err != nil {
		return err
	}
	if layout.FlagsOffset < 0 {
		return fmt.Errorf("%w: channel %d of %s has no boost parameters", ErrUnsupported, channel, d.profile.Name)
	}

	return d.session.Update(func(image []byte) error {
		flags := SetBit(uint32(image[layout.FlagsOffset]), bitOf(layout), bit(on))
		image[layout.FlagsOffset] = byte(flags)
		return nil
	})
}

func bit(on bool) uint32 {
	if on {
		return 1
	}
	return 0
}
