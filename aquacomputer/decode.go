package aquacomputer

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Decode turns a raw push report into a snapshot. raw starts with the
// report id byte, like the transport delivers it.
//
// ErrWrongReport is benign: devices multiplex several report ids on the
// same endpoint and the others are simply not ours. ErrTruncated means the
// report matched but is shorter than the profile requires.
func Decode(p *DeviceProfile, raw []byte) (*Snapshot, error) {
	if p.Caps.Has(CapLegacyPoll) {
		return nil, fmt.Errorf("%w: %s does not push reports", ErrUnsupported, p.Name)
	}
	if len(raw) == 0 || raw[0] != p.SensorReportID {
		return nil, ErrWrongReport
	}
	if len(raw) < p.SensorReportSize {
		return nil, fmt.Errorf("%w: got %d bytes, want at least %d", ErrTruncated, len(raw), p.SensorReportSize)
	}

	s := &Snapshot{}

	if p.SerialOffset >= 0 {
		s.Serial[0] = be16(raw, p.SerialOffset)
		s.Serial[1] = be16(raw, p.SerialOffset+2)
	}
	if p.FirmwareOffset >= 0 {
		s.FirmwareVersion = be16(raw, p.FirmwareOffset)
	}
	if p.PowerCyclesOffset >= 0 {
		s.PowerCycles = be32(raw, p.PowerCyclesOffset)
	}

	s.Temps = decodeTemps(raw, p.SensorsStart, p.NumSensors)
	s.VirtualTemps = decodeTemps(raw, p.VirtualSensorsStart, p.NumVirtualSensors)

	if p.NumFlowSensors > 0 {
		s.Flows = make([]Reading, p.NumFlowSensors)
		for i := range s.Flows {
			// Flow is in decilitres per hour, kept raw.
			s.Flows[i] = Reading{Value: int32(be16(raw, p.FlowSensorsStart+i*SensorSize)), Valid: true}
		}
	}

	if p.NumFans > 0 {
		s.Fans = make([]FanReading, p.NumFans)
		for i, base := range p.FanSensorOffsets {
			f := &s.Fans[i]
			if p.Fan.Percent >= 0 {
				f.Percent = be16(raw, base+p.Fan.Percent)
			}
			if p.Fan.Speed >= 0 {
				f.Speed = be16(raw, base+p.Fan.Speed)
			}
			if p.Fan.Voltage >= 0 {
				f.Voltage = uint32(be16(raw, base+p.Fan.Voltage)) * 10
			}
			if p.Fan.Current >= 0 {
				f.Current = be16(raw, base+p.Fan.Current)
			}
			if p.Fan.Power >= 0 {
				f.Power = uint32(be16(raw, base+p.Fan.Power)) * p.PowerScale
			}
		}
	}

	// Model oddities, strictly capability driven.
	if p.Caps.Has(CapExtraRails) {
		s.Rails = make([]uint32, len(p.ExtraRailOffsets))
		for i, offset := range p.ExtraRailOffsets {
			s.Rails[i] = uint32(be16(raw, offset)) * 10
		}
	}
	if p.Caps.Has(CapAlarms) {
		s.Alarms = decodeAlarms(be32(raw, p.AlarmsOffset))
	}
	if p.DissipatedPowerOffset >= 0 {
		s.DissipatedPower = uint32(be16(raw, p.DissipatedPowerOffset)) * p.DissipatedPowerScale
	}

	s.UpdatedAt = time.Now()
	return s, nil
}

func decodeTemps(raw []byte, start, n int) []Reading {
	if n == 0 {
		return nil
	}
	temps := make([]Reading, n)
	for i := range temps {
		milliC, ok := ScaleTemp(be16(raw, start+i*SensorSize))
		temps[i] = Reading{Value: milliC, Valid: ok}
	}
	return temps
}

func be16(raw []byte, offset int) uint16 {
	return binary.BigEndian.Uint16(raw[offset:])
}

func be32(raw []byte, offset int) uint32 {
	return binary.BigEndian.Uint32(raw[offset:])
}

func le16(raw []byte, offset int) uint16 {
	return binary.LittleEndian.Uint16(raw[offset:])
}
