package aquacomputer

import (
	"fmt"
	"sync"
	"time"
)

// Device binds one physical unit: its profile, its control session and the
// latest telemetry snapshot.
type Device struct {
	profile *DeviceProfile
	session *Session
	tr      Transport

	mu    sync.RWMutex
	snap  *Snapshot
	hwrev uint16

	ready     chan struct{}
	readyOnce sync.Once
}

// New builds a device handle for one model over one transport.
func New(model Model, tr Transport) (*Device, error) {
	profile, err := ProfileFor(model)
	if err != nil {
		return nil, err
	}
	return &Device{
		profile: profile,
		session: newSession(profile, tr),
		tr:      tr,
		ready:   make(chan struct{}),
	}, nil
}

// Profile returns the immutable layout description of the device.
func (d *Device) Profile() *DeviceProfile { return d.profile }

// Model returns the device model.
func (d *Device) Model() Model { return d.profile.Model }

// HandleReport ingests one raw push report. Reports that fail to decode are
// dropped; the previous snapshot stays in place untouched.
func (d *Device) HandleReport(raw []byte) {
	snap, err := Decode(d.profile, raw)
	if err != nil {
		return
	}

	d.mu.Lock()
	d.snap = snap
	if d.profile.HwRevisionOffset >= 0 {
		d.hwrev = be16(raw, d.profile.HwRevisionOffset)
	}
	d.mu.Unlock()

	d.readyOnce.Do(func() { close(d.ready) })
}

// WaitReady blocks until the first report has been decoded. Control paths
// that depend on report content (hardware revision, serial) gate on it.
func (d *Device) WaitReady(timeout time.Duration) error {
	if d.profile.Caps.Has(CapLegacyPoll) {
		return nil
	}
	select {
	case <-d.ready:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: no report from %s", ErrNoData, d.profile.Name)
	}
}

// Telemetry returns the current snapshot. Push models serve the last decoded
// report and refuse it once it outlives the validity window; legacy models
// fetch a fresh status report on every call.
func (d *Device) Telemetry() (*Snapshot, error) {
	if d.profile.Caps.Has(CapLegacyPoll) {
		raw, err := d.session.PollStatus()
		if err != nil {
			return nil, err
		}
		return DecodeLegacy(d.profile, raw)
	}

	d.mu.RLock()
	snap := d.snap
	d.mu.RUnlock()

	if snap == nil {
		return nil, fmt.Errorf("%w: no report from %s yet", ErrNoData, d.profile.Name)
	}
	if snap.Expired(time.Now()) {
		return nil, fmt.Errorf("%w: last report at %s", ErrStale, snap.UpdatedAt.Format(time.RFC3339))
	}
	return snap, nil
}

// HardwareRevision returns the revision word carried in push reports, for
// the models that publish one.
func (d *Device) HardwareRevision() (uint16, error) {
	if d.profile.HwRevisionOffset < 0 {
		return 0, fmt.Errorf("%w: %s has no hardware revision", ErrUnsupported, d.profile.Name)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.snap == nil {
		return 0, fmt.Errorf("%w: no report from %s yet", ErrNoData, d.profile.Name)
	}
	return d.hwrev, nil
}

func (d *Device) reading(kind string, channels func(*Snapshot) []Reading, count, channel int) (int32, error) {
	if channel < 0 || channel >= count {
		return 0, fmt.Errorf("%w: no %s channel %d on %s", ErrUnsupported, kind, channel, d.profile.Name)
	}
	snap, err := d.Telemetry()
	if err != nil {
		return 0, err
	}
	r := channels(snap)[channel]
	if !r.Valid {
		return 0, fmt.Errorf("%w: %s channel %d disconnected", ErrNoData, kind, channel)
	}
	return r.Value, nil
}

// Temperature returns one physical sensor in milli-degrees.
func (d *Device) Temperature(channel int) (int32, error) {
	return d.reading("temperature", func(s *Snapshot) []Reading { return s.Temps }, d.profile.NumSensors, channel)
}

// VirtualTemperature returns one software sensor in milli-degrees.
func (d *Device) VirtualTemperature(channel int) (int32, error) {
	return d.reading("virtual temperature", func(s *Snapshot) []Reading { return s.VirtualTemps }, d.profile.NumVirtualSensors, channel)
}

// Flow returns one flow channel in decilitres per hour.
func (d *Device) Flow(channel int) (int32, error) {
	return d.reading("flow", func(s *Snapshot) []Reading { return s.Flows }, d.profile.NumFlowSensors, channel)
}

func (d *Device) fan(channel int, sub int) (*FanReading, error) {
	if channel < 0 || channel >= d.profile.NumFans {
		return nil, fmt.Errorf("%w: no fan channel %d on %s", ErrUnsupported, channel, d.profile.Name)
	}
	if sub < 0 {
		return nil, fmt.Errorf("%w: %s fan records do not carry that value", ErrUnsupported, d.profile.Name)
	}
	snap, err := d.Telemetry()
	if err != nil {
		return nil, err
	}
	return &snap.Fans[channel], nil
}

// FanSpeed returns one fan channel in RPM.
func (d *Device) FanSpeed(channel int) (uint16, error) {
	fan, err := d.fan(channel, d.profile.Fan.Speed)
	if err != nil {
		return 0, err
	}
	return fan.Speed, nil
}

// FanPercent returns one fan channel's duty in percent*100.
func (d *Device) FanPercent(channel int) (uint16, error) {
	fan, err := d.fan(channel, d.profile.Fan.Percent)
	if err != nil {
		return 0, err
	}
	return fan.Percent, nil
}

// FanVoltage returns one fan channel in mV.
func (d *Device) FanVoltage(channel int) (uint32, error) {
	fan, err := d.fan(channel, d.profile.Fan.Voltage)
	if err != nil {
		return 0, err
	}
	return fan.Voltage, nil
}

// FanCurrent returns one fan channel in mA.
func (d *Device) FanCurrent(channel int) (uint16, error) {
	fan, err := d.fan(channel, d.profile.Fan.Current)
	if err != nil {
		return 0, err
	}
	return fan.Current, nil
}

// FanPower returns one fan channel in µW.
func (d *Device) FanPower(channel int) (uint32, error) {
	fan, err := d.fan(channel, d.profile.Fan.Power)
	if err != nil {
		return 0, err
	}
	return fan.Power, nil
}

func (d *Device) ctrlFanOffset(channel int) (int, error) {
	if !d.profile.Caps.Has(CapCtrl) {
		return 0, fmt.Errorf("%w: %s is read-only", ErrUnsupported, d.profile.Name)
	}
	if channel < 0 || channel >= len(d.profile.CtrlFanOffsets) {
		return 0, fmt.Errorf("%w: no fan channel %d on %s", ErrUnsupported, channel, d.profile.Name)
	}
	return d.profile.CtrlFanOffsets[channel], nil
}

// SetFanPower writes one channel's manual duty setpoint in percent*100.
func (d *Device) SetFanPower(channel int, percent uint16) error {
	offset, err := d.ctrlFanOffset(channel)
	if err != nil {
		return err
	}
	if percent > 10000 {
		return fmt.Errorf("%w: power %d above 100%%", ErrOutOfRange, percent)
	}
	return d.session.WriteField(offset, percent, Width16BE)
}

// SetPWM writes one channel's manual duty as a 0-255 PWM value.
func (d *Device) SetPWM(channel int, pwm int) error {
	if pwm < 0 || pwm > 255 {
		return fmt.Errorf("%w: pwm %d", ErrOutOfRange, pwm)
	}
	return d.SetFanPower(channel, PWMToPercent(uint8(pwm)))
}

// maximum trim accepted by the firmware, in milli-degrees either way
const tempOffsetLimit = 15000

// TempOffset reads one sensor's calibration trim in milli-degrees.
func (d *Device) TempOffset(channel int) (int32, error) {
	if !d.profile.Caps.Has(CapCtrl) || d.profile.TempCtrlOffset < 0 {
		return 0, fmt.Errorf("%w: %s has no sensor trim", ErrUnsupported, d.profile.Name)
	}
	if channel < 0 || channel >= d.profile.NumSensors {
		return 0, fmt.Errorf("%w: no temperature channel %d on %s", ErrUnsupported, channel, d.profile.Name)
	}
	raw, err := d.session.ReadField(d.profile.TempCtrlOffset+channel*SensorSize, Width16BE)
	if err != nil {
		return 0, err
	}
	return int32(int16(raw)) * 10, nil
}

// SetTempOffset writes one sensor's calibration trim in milli-degrees.
// Trims are stored as signed centi-degrees and capped at ±15 degrees.
func (d *Device) SetTempOffset(channel int, milliC int32) error {
	if !d.profile.Caps.Has(CapCtrl) || d.profile.TempCtrlOffset < 0 {
		return fmt.Errorf("%w: %s has no sensor trim", ErrUnsupported, d.profile.Name)
	}
	if channel < 0 || channel >= d.profile.NumSensors {
		return fmt.Errorf("%w: no temperature channel %d on %s", ErrUnsupported, channel, d.profile.Name)
	}
	if milliC < -tempOffsetLimit || milliC > tempOffsetLimit {
		return fmt.Errorf("%w: trim %dm°C outside ±%dm°C", ErrOutOfRange, milliC, tempOffsetLimit)
	}
	centi := int16(milliC / 10)
	return d.session.WriteField(d.profile.TempCtrlOffset+channel*SensorSize, uint16(centi), Width16BE)
}

// FanTempSource reads the one-based sensor index steering one fan channel.
// The device stores the selector zero-based; the shift keeps 0 free for
// "off" on the caller side.
func (d *Device) FanTempSource(channel int) (int, error) {
	offset, err := d.tempSrcOffset(channel)
	if err != nil {
		return 0, err
	}
	raw, err := d.session.ReadField(offset, Width8)
	if err != nil {
		return 0, err
	}
	src := int(raw)
	if d.profile.Caps.Has(CapOffsetEnable) {
		src++
	}
	return src, nil
}

// SetFanTempSource writes the one-based sensor index steering one fan
// channel.
func (d *Device) SetFanTempSource(channel, source int) error {
	offset, err := d.tempSrcOffset(channel)
	if err != nil {
		return err
	}
	if source < 1 || source > d.profile.NumSensors+d.profile.NumVirtualSensors {
		return fmt.Errorf("%w: no temperature source %d on %s", ErrOutOfRange, source, d.profile.Name)
	}
	if d.profile.Caps.Has(CapOffsetEnable) {
		source--
	}
	return d.session.WriteField(offset, uint16(source), Width8)
}

func (d *Device) tempSrcOffset(channel int) (int, error) {
	if len(d.profile.TempSrcOffsets) == 0 {
		return 0, fmt.Errorf("%w: %s has no temperature source selectors", ErrUnsupported, d.profile.Name)
	}
	if channel < 0 || channel >= len(d.profile.TempSrcOffsets) {
		return 0, fmt.Errorf("%w: no fan channel %d on %s", ErrUnsupported, channel, d.profile.Name)
	}
	return d.profile.TempSrcOffsets[channel], nil
}
