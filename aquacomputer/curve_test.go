package aquacomputer

import (
	"encoding/binary"
	"errors"
	"testing"
)

func fanCurveFixture() *FanCurve {
	c := &FanCurve{
		MinPower:      2000,
		MaxPower:      10000,
		FallbackPower: 5000,
		StartBoost:    true,
	}
	for i := range c.Points {
		c.Points[i] = FanCurvePoint{
			Temp:  uint16(2000 + i*200), // 20°C to 50°C
			Power: uint16(2000 + i*500),
		}
	}
	c.Points[15].Power = 10000
	return c
}

func TestFanCurveRoundTrip(t *testing.T) {
	d, _ := d5nextDevice(t)

	want := fanCurveFixture()
	if err := d.SetFanCurve(1, want); err != nil {
		t.Fatal(err)
	}

	got, err := d.FanCurve(1)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *want {
		t.Errorf("curve read back differs:\n got %+v\nwant %+v", got, want)
	}
}

func TestFanCurveOnTheWire(t *testing.T) {
	d, tr := d5nextDevice(t)
	layout := d.Profile().Curves[1]

	c := fanCurveFixture()
	if err := d.SetFanCurve(1, c); err != nil {
		t.Fatal(err)
	}

	written := tr.lastWrite(t)
	for i, point := range c.Points {
		if got := binary.BigEndian.Uint16(written[layout.TempBase+i*2:]); got != point.Temp {
			t.Errorf("point %d temp on the wire = %d, want %d", i, got, point.Temp)
		}
		if got := binary.BigEndian.Uint16(written[layout.PowerBase+i*2:]); got != point.Power {
			t.Errorf("point %d power on the wire = %d, want %d", i, got, point.Power)
		}
	}
	if got := binary.BigEndian.Uint16(written[layout.MinPower:]); got != 2000 {
		t.Errorf("min power on the wire = %d", got)
	}
	if got := written[layout.FlagsOffset] & 0x03; got != 0x01 {
		t.Errorf("flags byte = %#02x, want start boost only", got)
	}
}

func TestFanCurveSinglePoint(t *testing.T) {
	d, tr := d5nextDevice(t)
	layout := d.Profile().Curves[1]

	if err := d.SetFanCurvePoint(1, 5, FanCurvePoint{Temp: 3550, Power: 6000}); err != nil {
		t.Fatal(err)
	}

	written := tr.lastWrite(t)
	if got := binary.BigEndian.Uint16(written[layout.TempBase+5*2:]); got != 3550 {
		t.Errorf("temp on the wire = %d", got)
	}
	if got := binary.BigEndian.Uint16(written[layout.PowerBase+5*2:]); got != 6000 {
		t.Errorf("power on the wire = %d", got)
	}

	if err := d.SetFanCurvePoint(1, CurvePoints, FanCurvePoint{}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("point index past the curve: got %v", err)
	}
	if err := d.SetFanCurvePoint(1, 0, FanCurvePoint{Power: 10001}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("power above 100%%: got %v", err)
	}
}

func TestFanCurveFlags(t *testing.T) {
	d, tr := d5nextDevice(t)
	layout := d.Profile().Curves[1]

	if err := d.SetStartBoost(1, true); err != nil {
		t.Fatal(err)
	}
	if err := d.SetHoldMinPower(1, true); err != nil {
		t.Fatal(err)
	}

	written := tr.lastWrite(t)
	flags := uint32(written[layout.FlagsOffset])
	if GetBit(flags, layout.StartBoostBit) != 1 || GetBit(flags, layout.HoldMinBit) != 1 {
		t.Errorf("flags byte = %#02x", flags)
	}

	if err := d.SetStartBoost(1, false); err != nil {
		t.Fatal(err)
	}
	written = tr.lastWrite(t)
	flags = uint32(written[layout.FlagsOffset])
	if GetBit(flags, layout.StartBoostBit) != 0 {
		t.Error("start boost should be cleared")
	}
	if GetBit(flags, layout.HoldMinBit) != 1 {
		t.Error("clearing one flag must not touch the other")
	}
}

// The D5 Next pump channel has no boost parameters; writing them must fail
// loudly instead of landing somewhere else in the buffer.
func TestFanCurvePumpChannelRejectsFlags(t *testing.T) {
	d, tr := d5nextDevice(t)

	if err := d.SetStartBoost(0, true); !errors.Is(err, ErrUnsupported) {
		t.Errorf("SetStartBoost: got %v, want ErrUnsupported", err)
	}
	if err := d.SetHoldMinPower(0, true); !errors.Is(err, ErrUnsupported) {
		t.Errorf("SetHoldMinPower: got %v, want ErrUnsupported", err)
	}

	c := fanCurveFixture()
	if err := d.SetFanCurve(0, c); !errors.Is(err, ErrUnsupported) {
		t.Errorf("curve with boost flags: got %v, want ErrUnsupported", err)
	}

	tr.mu.Lock()
	writes := len(tr.writes)
	tr.mu.Unlock()
	if writes != 0 {
		t.Error("rejected writes must not touch the device")
	}

	// Without the flags the same curve is fine on the pump channel.
	c.StartBoost = false
	if err := d.SetFanCurve(0, c); err != nil {
		t.Fatal(err)
	}

	got, err := d.FanCurve(0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Points != c.Points || got.MinPower != c.MinPower {
		t.Error("pump curve did not round-trip")
	}
	if got.StartBoost || got.HoldMinPower {
		t.Error("pump channel cannot report boost parameters")
	}
}

func TestFanCurveChannelBounds(t *testing.T) {
	d, _ := d5nextDevice(t)

	if _, err := d.FanCurve(2); !errors.Is(err, ErrUnsupported) {
		t.Errorf("got %v, want ErrUnsupported", err)
	}
	if err := d.SetFanCurve(-1, fanCurveFixture()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("got %v, want ErrUnsupported", err)
	}
}

func TestFanCurveRejectsPowerAboveFull(t *testing.T) {
	d, tr := d5nextDevice(t)

	c := fanCurveFixture()
	c.MaxPower = 10001
	if err := d.SetFanCurve(1, c); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("got %v, want ErrOutOfRange", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.writes) != 0 {
		t.Error("rejected curve must not touch the device")
	}
}
