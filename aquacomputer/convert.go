package aquacomputer

// Duty cycles on the wire are fixed-point percent (0..10000 for 0..100%).
// Callers on the hwmon side speak PWM (0..255).

func PercentToPWM(raw uint16) uint8 {
	if raw > 10000 {
		raw = 10000
	}
	return uint8((uint32(raw)*255 + 5000) / 10000)
}

func PWMToPercent(pwm uint8) uint16 {
	return uint16((uint32(pwm)*10000 + 127) / 255)
}

func GetBit(value uint32, pos uint8) uint32 {
	return (value >> pos) & 1
}

// SetBit clears the target bit before OR-ing the new one in, everything
// else is left untouched.
func SetBit(value uint32, pos uint8, bit uint32) uint32 {
	value &^= 1 << pos
	return value | (bit&1)<<pos
}

func ClearBit(value uint32, pos uint8) uint32 {
	return value &^ (1 << pos)
}

// ScaleTemp converts a raw 16-bit centi-degree reading to milli-degrees.
// 0x7FFF marks a slot without a probe and yields ok == false.
func ScaleTemp(raw uint16) (milliC int32, ok bool) {
	if raw == SensorDisconnected {
		return 0, false
	}
	return int32(int16(raw)) * 10, true
}

//
// Aquastream XT legacy encodings. The pump reports a tick period instead of
// an RPM and takes its setpoint on a 3000-6000 RPM scale in steps of 60.
//

const pumpPeriodConstant = 6000000

const (
	pumpRPMMin  = 3000
	pumpRPMMax  = 6000
	pumpRPMStep = 60
)

func LegacyPumpRPM(raw uint16) int {
	if raw == 0 {
		return 0
	}
	return pumpPeriodConstant / int(raw)
}

func PumpRPMToPWM(rpm int) uint8 {
	rpm = quantizePumpRPM(rpm)
	return uint8(((rpm-pumpRPMMin)*255 + (pumpRPMMax-pumpRPMMin)/2) / (pumpRPMMax - pumpRPMMin))
}

func PWMToPumpRPM(pwm uint8) int {
	rpm := pumpRPMMin + (int(pwm)*(pumpRPMMax-pumpRPMMin)+127)/255
	return quantizePumpRPM(rpm)
}

func quantizePumpRPM(rpm int) int {
	rpm = min(max(rpm, pumpRPMMin), pumpRPMMax)
	return (rpm + pumpRPMStep/2) / pumpRPMStep * pumpRPMStep
}
