package aquacomputer

import (
	"fmt"
	"math"
	"time"
)

// Aquastream XT status report field offsets. This generation is
// little-endian, unlike the push family.
const (
	aquastreamxtFanRecord  = 0x05
	aquastreamxtPumpRecord = 0x0B

	legacyVoltageOffset = 0x00
	legacyCurrentOffset = 0x02
	legacySpeedOffset   = 0x04
)

// DecodeLegacy decodes a synchronously fetched status report for the two
// models without push telemetry. Layouts are per model and enumerated; they
// share nothing with Decode beyond the snapshot shape.
func DecodeLegacy(p *DeviceProfile, raw []byte) (*Snapshot, error) {
	if !p.Caps.Has(CapLegacyPoll) {
		return nil, fmt.Errorf("%w: %s pushes its reports", ErrUnsupported, p.Name)
	}
	if len(raw) == 0 || raw[0] != p.StatusReportID {
		return nil, ErrWrongReport
	}
	if len(raw) < p.StatusReportSize {
		return nil, fmt.Errorf("%w: got %d bytes, want at least %d", ErrTruncated, len(raw), p.StatusReportSize)
	}

	s := &Snapshot{}

	switch p.Model {
	case AquastreamXT:
		decodeAquastreamXT(p, raw, s)
	case Poweradjust3:
		decodePoweradjust3(p, raw, s)
	default:
		return nil, fmt.Errorf("%w: no legacy layout for %s", ErrUnsupported, p.Name)
	}

	s.UpdatedAt = time.Now()
	return s, nil
}

func decodeAquastreamXT(p *DeviceProfile, raw []byte, s *Snapshot) {
	s.Serial[0] = le16(raw, p.SerialOffset)
	s.Serial[1] = le16(raw, p.SerialOffset+2)
	s.FirmwareVersion = le16(raw, p.FirmwareOffset)

	s.Temps = make([]Reading, p.NumSensors)
	for i := range s.Temps {
		milliC, ok := ScaleTemp(le16(raw, p.SensorsStart+i*SensorSize))
		s.Temps[i] = Reading{Value: milliC, Valid: ok}
	}

	s.Fans = make([]FanReading, p.NumFans)
	for i, base := range p.FanSensorOffsets {
		f := &s.Fans[i]
		f.Voltage = uint32(le16(raw, base+legacyVoltageOffset)) * 10
		f.Current = le16(raw, base+legacyCurrentOffset)
		f.Speed = le16(raw, base+legacySpeedOffset)
	}
	// The pump channel reports a tick period, not an RPM. Implausibly short
	// periods would overflow the 16-bit speed field, so cap them there.
	rpm := LegacyPumpRPM(le16(raw, aquastreamxtPumpRecord+legacySpeedOffset))
	s.Fans[1].Speed = uint16(min(rpm, math.MaxUint16))
}

func decodePoweradjust3(p *DeviceProfile, raw []byte, s *Snapshot) {
	s.Temps = make([]Reading, p.NumSensors)
	for i := range s.Temps {
		milliC, ok := ScaleTemp(le16(raw, p.SensorsStart+i*SensorSize))
		s.Temps[i] = Reading{Value: milliC, Valid: ok}
	}
}
