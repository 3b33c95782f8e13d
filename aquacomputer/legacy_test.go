package aquacomputer

import (
	"encoding/binary"
	"errors"
	"testing"
)

func putLE16(raw []byte, offset int, v uint16) { binary.LittleEndian.PutUint16(raw[offset:], v) }

func aquastreamxtStatus(t *testing.T) (*DeviceProfile, []byte) {
	t.Helper()
	p, err := ProfileFor(AquastreamXT)
	if err != nil {
		t.Fatal(err)
	}

	raw := make([]byte, p.StatusReportSize)
	raw[0] = p.StatusReportID
	putLE16(raw, p.SerialOffset, 4321)
	putLE16(raw, p.SerialOffset+2, 9876)
	putLE16(raw, p.FirmwareOffset, 1008)

	putLE16(raw, p.SensorsStart, 3010)              // fan IC
	putLE16(raw, p.SensorsStart+2, SensorDisconnected) // no external probe
	putLE16(raw, p.SensorsStart+4, 2875)            // coolant

	fan := p.FanSensorOffsets[0]
	putLE16(raw, fan+legacyVoltageOffset, 1195)
	putLE16(raw, fan+legacyCurrentOffset, 210)
	putLE16(raw, fan+legacySpeedOffset, 1460)

	pump := p.FanSensorOffsets[1]
	putLE16(raw, pump+legacyVoltageOffset, 1210)
	putLE16(raw, pump+legacyCurrentOffset, 350)
	putLE16(raw, pump+legacySpeedOffset, 1500) // tick period, not RPM

	return p, raw
}

func TestDecodeLegacy_AquastreamXT(t *testing.T) {
	p, raw := aquastreamxtStatus(t)

	s, err := DecodeLegacy(p, raw)
	if err != nil {
		t.Fatal(err)
	}

	if got := s.SerialNumber(); got != "04321-09876" {
		t.Errorf("serial = %q", got)
	}
	if s.FirmwareVersion != 1008 {
		t.Errorf("firmware = %d", s.FirmwareVersion)
	}

	if s.Temps[0].Value != 30100 || s.Temps[2].Value != 28750 {
		t.Errorf("temps = %+v", s.Temps)
	}
	if s.Temps[1].Valid {
		t.Error("disconnected probe should be invalid")
	}

	fan := s.Fans[0]
	if fan.Voltage != 11950 || fan.Current != 210 || fan.Speed != 1460 {
		t.Errorf("fan = %+v", fan)
	}

	// The pump reports a tick period; 1500 ticks is 4000 RPM.
	if s.Fans[1].Speed != 4000 {
		t.Errorf("pump speed = %d RPM, want 4000", s.Fans[1].Speed)
	}
	if s.Fans[1].Voltage != 12100 {
		t.Errorf("pump voltage = %d mV", s.Fans[1].Voltage)
	}
}

func TestDecodeLegacy_PumpSpeedCapped(t *testing.T) {
	p, raw := aquastreamxtStatus(t)

	// A 10-tick period would be 600000 RPM, far beyond the 16-bit speed
	// field; the decoder caps it instead of wrapping.
	putLE16(raw, p.FanSensorOffsets[1]+legacySpeedOffset, 10)

	s, err := DecodeLegacy(p, raw)
	if err != nil {
		t.Fatal(err)
	}
	if s.Fans[1].Speed != 65535 {
		t.Errorf("pump speed = %d, want 65535", s.Fans[1].Speed)
	}
}

func TestDecodeLegacy_Poweradjust3(t *testing.T) {
	p, err := ProfileFor(Poweradjust3)
	if err != nil {
		t.Fatal(err)
	}

	raw := make([]byte, p.StatusReportSize)
	raw[0] = p.StatusReportID
	putLE16(raw, p.SensorsStart, 2655)

	s, err := DecodeLegacy(p, raw)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Temps[0].Valid || s.Temps[0].Value != 26550 {
		t.Errorf("temp = %+v", s.Temps[0])
	}
}

func TestDecodeLegacy_Errors(t *testing.T) {
	p, raw := aquastreamxtStatus(t)

	if _, err := DecodeLegacy(p, raw[:p.StatusReportSize-1]); !errors.Is(err, ErrTruncated) {
		t.Errorf("got %v, want ErrTruncated", err)
	}

	bad := append([]byte(nil), raw...)
	bad[0] = 0x09
	if _, err := DecodeLegacy(p, bad); !errors.Is(err, ErrWrongReport) {
		t.Errorf("got %v, want ErrWrongReport", err)
	}

	push, err := ProfileFor(D5Next)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeLegacy(push, raw); !errors.Is(err, ErrUnsupported) {
		t.Errorf("push model: got %v, want ErrUnsupported", err)
	}
}

// Legacy devices are polled on demand, so Telemetry fetches a status report
// through the transport on every call.
func TestLegacyDeviceTelemetry(t *testing.T) {
	p, raw := aquastreamxtStatus(t)

	tr := newFakeTransport(map[byte][]byte{p.StatusReportID: raw})
	d, err := New(AquastreamXT, tr)
	if err != nil {
		t.Fatal(err)
	}

	// No first-report gate on polled models.
	if err := d.WaitReady(0); err != nil {
		t.Fatal(err)
	}

	s, err := d.Telemetry()
	if err != nil {
		t.Fatal(err)
	}
	if s.Fans[1].Speed != 4000 {
		t.Errorf("pump speed = %d", s.Fans[1].Speed)
	}

	// A fresh poll sees device-side changes immediately.
	tr.mu.Lock()
	putLE16(tr.reports[p.StatusReportID], p.SensorsStart, 2000)
	tr.mu.Unlock()

	s, err = d.Telemetry()
	if err != nil {
		t.Fatal(err)
	}
	if s.Temps[0].Value != 20000 {
		t.Errorf("temp after poll = %d", s.Temps[0].Value)
	}
}
