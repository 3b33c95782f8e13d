package aquacomputer

import "fmt"

type Model uint8

const (
	D5Next Model = iota
	Farbwerk
	Farbwerk360
	Octo
	Quadro
	HighFlowNext
	Aquaero
	AquastreamUltimate
	AquastreamXT
	Poweradjust3
)

func (m Model) String() string {
	if p, ok := profiles[m]; ok {
		return p.Name
	}
	return fmt.Sprintf("model(%d)", m)
}

// Capability selects which decode/encode strategies apply to a model.
// Unknown models simply carry none of them.
type Capability uint16

const (
	// CapCtrl marks a writable control buffer.
	CapCtrl Capability = 1 << iota
	// CapPacedCtrl requires CtrlReportDelay between control operations.
	CapPacedCtrl
	// CapChecksum requires CRC-16/USB over the checksum window on commit.
	CapChecksum
	// CapSecondaryReport requires the persist acknowledgement after a write.
	CapSecondaryReport
	// CapLegacyPoll marks devices without push reports, polled on demand.
	CapLegacyPoll
	// CapExtraRails marks voltage rails outside the fan records.
	CapExtraRails
	// CapAlarms marks a 32-bit alarm word in the sensor report.
	CapAlarms
	// CapFlow marks flow sensor channels.
	CapFlow
	// CapOffsetEnable marks the zero-based temperature source encoding that
	// is shifted by one at the API boundary.
	CapOffsetEnable
)

func (c Capability) Has(f Capability) bool { return c&f != 0 }

type FieldWidth uint8

const (
	Width8 FieldWidth = iota
	Width16BE
	Width16LE
)

// FanLayout gives the sub-offsets inside one fan record of the sensor
// report. A negative offset means the record does not carry that value.
type FanLayout struct {
	Percent int
	Voltage int
	Current int
	Power   int
	Speed   int
}

// CurveLayout addresses one channel's fan curve inside the control buffer.
// Points live in two parallel 16-entry arrays of big-endian values,
// temperatures in centi-degrees and powers in percent*100. A negative
// offset means the parameter does not exist on that channel.
type CurveLayout struct {
	TempBase      int
	PowerBase     int
	MinPower      int
	MaxPower      int
	FallbackPower int
	FlagsOffset   int
	StartBoostBit uint8
	HoldMinBit    uint8
}

// DeviceProfile describes one model's report layout. Profiles are immutable
// and shared between every component handling the same device instance.
type DeviceProfile struct {
	Model Model
	Name  string

	SensorReportID   byte
	SensorReportSize int // minimum accepted length, id byte included

	SerialOffset      int
	FirmwareOffset    int
	PowerCyclesOffset int
	HwRevisionOffset  int

	NumSensors          int
	SensorsStart        int
	NumVirtualSensors   int
	VirtualSensorsStart int
	NumFlowSensors      int
	FlowSensorsStart    int

	NumFans          int
	FanSensorOffsets []int
	Fan              FanLayout
	PowerScale       uint32 // µW per raw power unit

	ExtraRailOffsets      []int
	AlarmsOffset          int
	DissipatedPowerOffset int
	DissipatedPowerScale  uint32

	CtrlReportID   byte
	CtrlReportSize int
	ChecksumStart  int
	ChecksumLength int
	ChecksumOffset int
	CtrlFanOffsets []int // manual duty setpoints, percent*100 big-endian
	TempCtrlOffset int   // per-sensor trim, base + i*2, big-endian centi-degrees
	TempSrcOffsets []int // per-fan temperature source selector byte
	Curves         []CurveLayout

	// Legacy polled models fetch this report synchronously instead of
	// receiving push reports.
	StatusReportID   byte
	StatusReportSize int

	Caps Capability

	TempLabels        []string
	VirtualTempLabels []string
	FlowLabels        []string
	SpeedLabels       []string
	PowerLabels       []string
	VoltageLabels     []string
	CurrentLabels     []string
	RailLabels        []string
}

// ProfileFor returns the immutable profile of a supported model.
func ProfileFor(model Model) (*DeviceProfile, error) {
	p, ok := profiles[model]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %d", ErrUnsupported, model)
	}
	return p, nil
}

// Models lists every supported model.
func Models() []Model {
	models := make([]Model, 0, len(profiles))
	for m := range profiles {
		models = append(models, m)
	}
	return models
}

func init() {
	for model, p := range profiles {
		if p.Model != model {
			panic(fmt.Sprintf("aquacomputer: profile %q registered under the wrong model", p.Name))
		}
		p.validate()
	}
}

// validate panics on a malformed profile. A bad profile is a packaging
// defect, not a runtime condition.
func (p *DeviceProfile) validate() {
	fail := func(format string, args ...any) {
		panic(fmt.Sprintf("aquacomputer: profile %q: %s", p.Name, fmt.Sprintf(format, args...)))
	}

	sensorSize := p.SensorReportSize
	if p.Caps.Has(CapLegacyPoll) {
		sensorSize = p.StatusReportSize
		if p.StatusReportID == 0 || p.StatusReportSize <= 0 {
			fail("legacy model without a status report")
		}
	}
	if sensorSize <= 0 {
		fail("sensor report size %d", sensorSize)
	}

	inSensor := func(what string, offset, width int) {
		if offset < 0 || offset+width > sensorSize {
			fail("%s at %#x exceeds sensor report size %#x", what, offset, sensorSize)
		}
	}

	if p.SerialOffset >= 0 {
		inSensor("serial number", p.SerialOffset, 4)
	}
	if p.FirmwareOffset >= 0 {
		inSensor("firmware version", p.FirmwareOffset, 2)
	}
	if p.PowerCyclesOffset >= 0 {
		inSensor("power cycles", p.PowerCyclesOffset, 4)
	}
	if p.HwRevisionOffset >= 0 {
		inSensor("hardware revision", p.HwRevisionOffset, 2)
	}

	if p.NumSensors < 0 || p.NumVirtualSensors < 0 || p.NumFlowSensors < 0 || p.NumFans < 0 {
		fail("negative channel count")
	}
	if p.NumSensors > 0 {
		inSensor("temperature sensors", p.SensorsStart, p.NumSensors*SensorSize)
	}
	if p.NumVirtualSensors > 0 {
		inSensor("virtual sensors", p.VirtualSensorsStart, p.NumVirtualSensors*SensorSize)
	}
	if p.NumFlowSensors > 0 {
		inSensor("flow sensors", p.FlowSensorsStart, p.NumFlowSensors*SensorSize)
	}

	if len(p.FanSensorOffsets) != p.NumFans {
		fail("%d fans but %d sensor offsets", p.NumFans, len(p.FanSensorOffsets))
	}
	for i, base := range p.FanSensorOffsets {
		for _, sub := range []int{p.Fan.Percent, p.Fan.Voltage, p.Fan.Current, p.Fan.Power, p.Fan.Speed} {
			if sub < 0 {
				continue
			}
			inSensor(fmt.Sprintf("fan %d record", i), base+sub, 2)
		}
	}
	if p.NumFans > 0 && p.Fan.Power >= 0 && p.PowerScale == 0 {
		fail("fans without a power scale")
	}

	for i, offset := range p.ExtraRailOffsets {
		inSensor(fmt.Sprintf("voltage rail %d", i), offset, 2)
	}
	if p.Caps.Has(CapAlarms) {
		inSensor("alarm word", p.AlarmsOffset, 4)
	}
	if p.DissipatedPowerOffset >= 0 {
		inSensor("dissipated power", p.DissipatedPowerOffset, 2)
		if p.DissipatedPowerScale == 0 {
			fail("dissipated power without a scale")
		}
	}

	fanCount := func(sub int) int {
		if p.NumFans == 0 || sub < 0 {
			return 0
		}
		return p.NumFans
	}
	labels := []struct {
		name  string
		count int
		have  []string
	}{
		{"temperature", p.NumSensors, p.TempLabels},
		{"virtual temperature", p.NumVirtualSensors, p.VirtualTempLabels},
		{"flow", p.NumFlowSensors, p.FlowLabels},
		{"speed", fanCount(p.Fan.Speed), p.SpeedLabels},
		{"power", fanCount(p.Fan.Power), p.PowerLabels},
		{"voltage", fanCount(p.Fan.Voltage), p.VoltageLabels},
		{"current", fanCount(p.Fan.Current), p.CurrentLabels},
		{"rail", len(p.ExtraRailOffsets), p.RailLabels},
	}
	for _, l := range labels {
		if len(l.have) != l.count {
			fail("%d %s channels but %d labels", l.count, l.name, len(l.have))
		}
	}

	if !p.Caps.Has(CapCtrl) {
		return
	}

	if p.CtrlReportSize <= 0 {
		fail("control buffer size %d", p.CtrlReportSize)
	}
	inCtrl := func(what string, offset, width int) {
		if offset < 0 || offset+width > p.CtrlReportSize {
			fail("%s at %#x exceeds control buffer size %#x", what, offset, p.CtrlReportSize)
		}
	}

	if p.Caps.Has(CapChecksum) {
		inCtrl("checksum window", p.ChecksumStart, p.ChecksumLength)
		inCtrl("checksum trailer", p.ChecksumOffset, 2)
	}
	if len(p.CtrlFanOffsets) != p.NumFans {
		fail("%d fans but %d control setpoints", p.NumFans, len(p.CtrlFanOffsets))
	}
	for i, offset := range p.CtrlFanOffsets {
		inCtrl(fmt.Sprintf("fan %d setpoint", i), offset, 2)
	}
	if p.TempCtrlOffset >= 0 {
		inCtrl("temperature trim", p.TempCtrlOffset, p.NumSensors*SensorSize)
	}
	if len(p.TempSrcOffsets) != 0 && len(p.TempSrcOffsets) != p.NumFans {
		fail("%d fans but %d temperature source selectors", p.NumFans, len(p.TempSrcOffsets))
	}
	for i, offset := range p.TempSrcOffsets {
		inCtrl(fmt.Sprintf("fan %d temperature source", i), offset, 1)
	}
	if len(p.Curves) != 0 && len(p.Curves) != p.NumFans {
		fail("%d fans but %d curve layouts", p.NumFans, len(p.Curves))
	}
	for i, c := range p.Curves {
		inCtrl(fmt.Sprintf("fan %d curve temperatures", i), c.TempBase, CurvePoints*2)
		inCtrl(fmt.Sprintf("fan %d curve powers", i), c.PowerBase, CurvePoints*2)
		for _, aux := range []int{c.MinPower, c.MaxPower, c.FallbackPower} {
			if aux >= 0 {
				inCtrl(fmt.Sprintf("fan %d curve parameter", i), aux, 2)
			}
		}
		if c.FlagsOffset >= 0 {
			inCtrl(fmt.Sprintf("fan %d curve flags", i), c.FlagsOffset, 1)
		}
	}
}

func fanLabels(format string, n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf(format, i+1)
	}
	return labels
}

// octoCurve lays out one fan block of the Octo/Quadro control buffer. The
// blocks are 0x55 bytes apart, the setpoint sits at the base.
func octoCurve(base int) CurveLayout {
	return CurveLayout{
		TempBase:      base + 0x02,
		PowerBase:     base + 0x22,
		MinPower:      base + 0x42,
		MaxPower:      base + 0x44,
		FallbackPower: base + 0x46,
		FlagsOffset:   base + 0x48,
		StartBoostBit: 0,
		HoldMinBit:    1,
	}
}

func aquaeroCurve(base int) CurveLayout {
	return CurveLayout{
		TempBase:      base,
		PowerBase:     base + 0x20,
		MinPower:      base + 0x40,
		MaxPower:      base + 0x42,
		FallbackPower: base + 0x44,
		FlagsOffset:   base + 0x46,
		StartBoostBit: 0,
		HoldMinBit:    1,
	}
}

var profiles = map[Model]*DeviceProfile{
	D5Next: {
		Model: D5Next,
		Name:  "d5next",

		SensorReportID:    SensorReportID,
		SensorReportSize:  0x9E,
		SerialOffset:      0x03,
		FirmwareOffset:    0x0D,
		PowerCyclesOffset: 0x18,
		HwRevisionOffset:  -1,

		NumSensors:   1,
		SensorsStart: 0x57,

		NumFans:          2,
		FanSensorOffsets: []int{0x6C, 0x5F},
		Fan:              FanLayout{Percent: 0x00, Voltage: 0x02, Current: 0x04, Power: 0x06, Speed: 0x08},
		PowerScale:       10000,

		ExtraRailOffsets:      []int{0x39},
		DissipatedPowerOffset: -1,

		CtrlReportID:   CtrlReportID,
		CtrlReportSize: 0x329,
		ChecksumStart:  0x01,
		ChecksumLength: 0x326,
		ChecksumOffset: 0x327,
		CtrlFanOffsets: []int{0x97, 0x42},
		TempCtrlOffset: 0x2D,
		Curves: []CurveLayout{
			{
				// The pump channel has no start boost nor hold minimum.
				TempBase:      0x9C,
				PowerBase:     0xBC,
				MinPower:      0xDC,
				MaxPower:      0xDE,
				FallbackPower: 0xE0,
				FlagsOffset:   -1,
			},
			{
				TempBase:      0x47,
				PowerBase:     0x67,
				MinPower:      0x87,
				MaxPower:      0x89,
				FallbackPower: 0x8B,
				FlagsOffset:   0x8D,
				StartBoostBit: 0,
				HoldMinBit:    1,
			},
		},

		Caps: CapCtrl | CapPacedCtrl | CapChecksum | CapSecondaryReport | CapExtraRails,

		TempLabels:    []string{"Coolant temp"},
		SpeedLabels:   []string{"Pump speed", "Fan speed"},
		PowerLabels:   []string{"Pump power", "Fan power"},
		VoltageLabels: []string{"Pump voltage", "Fan voltage"},
		CurrentLabels: []string{"Pump current", "Fan current"},
		RailLabels:    []string{"+5V voltage"},
	},

	Farbwerk: {
		Model: Farbwerk,
		Name:  "farbwerk",

		SensorReportID:    SensorReportID,
		SensorReportSize:  0x37,
		SerialOffset:      0x03,
		FirmwareOffset:    0x0D,
		PowerCyclesOffset: -1,
		HwRevisionOffset:  -1,

		NumSensors:   4,
		SensorsStart: 0x2F,

		DissipatedPowerOffset: -1,
		TempCtrlOffset:        -1,

		TempLabels: fanLabels("Sensor %d", 4),
	},

	Farbwerk360: {
		Model: Farbwerk360,
		Name:  "farbwerk360",

		SensorReportID:    SensorReportID,
		SensorReportSize:  0x3A,
		SerialOffset:      0x03,
		FirmwareOffset:    0x0D,
		PowerCyclesOffset: -1,
		HwRevisionOffset:  -1,

		NumSensors:   4,
		SensorsStart: 0x32,

		DissipatedPowerOffset: -1,
		TempCtrlOffset:        -1,

		TempLabels: fanLabels("Sensor %d", 4),
	},

	Octo: {
		Model: Octo,
		Name:  "octo",

		SensorReportID:    SensorReportID,
		SensorReportSize:  0xE2,
		SerialOffset:      0x03,
		FirmwareOffset:    0x0D,
		PowerCyclesOffset: 0x18,
		HwRevisionOffset:  -1,

		NumSensors:   4,
		SensorsStart: 0x3D,

		NumFans:          8,
		FanSensorOffsets: []int{0x7D, 0x8A, 0x97, 0xA4, 0xB1, 0xBE, 0xCB, 0xD8},
		Fan:              FanLayout{Percent: 0x00, Voltage: 0x02, Current: 0x04, Power: 0x06, Speed: 0x08},
		PowerScale:       10000,

		DissipatedPowerOffset: -1,

		CtrlReportID:   CtrlReportID,
		CtrlReportSize: 0x65F,
		ChecksumStart:  0x01,
		ChecksumLength: 0x65C,
		ChecksumOffset: 0x65D,
		CtrlFanOffsets: []int{0x5B, 0xB0, 0x105, 0x15A, 0x1AF, 0x204, 0x259, 0x2AE},
		TempCtrlOffset: 0x0A,
		Curves: []CurveLayout{
			octoCurve(0x5B), octoCurve(0xB0), octoCurve(0x105), octoCurve(0x15A),
			octoCurve(0x1AF), octoCurve(0x204), octoCurve(0x259), octoCurve(0x2AE),
		},

		Caps: CapCtrl | CapPacedCtrl | CapChecksum | CapSecondaryReport,

		TempLabels:    fanLabels("Sensor %d", 4),
		SpeedLabels:   fanLabels("Fan %d speed", 8),
		PowerLabels:   fanLabels("Fan %d power", 8),
		VoltageLabels: fanLabels("Fan %d voltage", 8),
		CurrentLabels: fanLabels("Fan %d current", 8),
	},

	Quadro: {
		Model: Quadro,
		Name:  "quadro",

		SensorReportID:    SensorReportID,
		SensorReportSize:  0xA1,
		SerialOffset:      0x03,
		FirmwareOffset:    0x0D,
		PowerCyclesOffset: 0x18,
		HwRevisionOffset:  -1,

		NumSensors:   4,
		SensorsStart: 0x34,

		NumFlowSensors:   1,
		FlowSensorsStart: 0x6E,

		NumFans:          4,
		FanSensorOffsets: []int{0x70, 0x7D, 0x8A, 0x97},
		Fan:              FanLayout{Percent: 0x00, Voltage: 0x02, Current: 0x04, Power: 0x06, Speed: 0x08},
		PowerScale:       10000,

		DissipatedPowerOffset: -1,

		CtrlReportID:   CtrlReportID,
		CtrlReportSize: 0x3C1,
		ChecksumStart:  0x01,
		ChecksumLength: 0x3BE,
		ChecksumOffset: 0x3BF,
		CtrlFanOffsets: []int{0x36, 0x8B, 0xE0, 0x135},
		TempCtrlOffset: 0x0A,
		Curves: []CurveLayout{
			octoCurve(0x36), octoCurve(0x8B), octoCurve(0xE0), octoCurve(0x135),
		},

		Caps: CapCtrl | CapPacedCtrl | CapChecksum | CapSecondaryReport | CapFlow,

		TempLabels:    fanLabels("Sensor %d", 4),
		FlowLabels:    []string{"Flow speed"},
		SpeedLabels:   fanLabels("Fan %d speed", 4),
		PowerLabels:   fanLabels("Fan %d power", 4),
		VoltageLabels: fanLabels("Fan %d voltage", 4),
		CurrentLabels: fanLabels("Fan %d current", 4),
	},

	HighFlowNext: {
		Model: HighFlowNext,
		Name:  "highflownext",

		SensorReportID:    SensorReportID,
		SensorReportSize:  0x9B,
		SerialOffset:      0x03,
		FirmwareOffset:    0x0D,
		PowerCyclesOffset: 0x18,
		HwRevisionOffset:  -1,

		NumSensors:   2,
		SensorsStart: 0x85,

		NumFlowSensors:   1,
		FlowSensorsStart: 0x81,

		ExtraRailOffsets: []int{0x97, 0x99},
		AlarmsOffset:     0x8D,

		// Vendor-observed calibration, not derivable from a unit definition.
		DissipatedPowerOffset: 0x8B,
		DissipatedPowerScale:  1000000,

		TempCtrlOffset: -1,

		Caps: CapFlow | CapExtraRails | CapAlarms,

		TempLabels: []string{"Coolant temp", "External sensor"},
		FlowLabels: []string{"Flow speed"},
		RailLabels: []string{"+5V voltage", "+5V USB voltage"},
	},

	Aquaero: {
		Model: Aquaero,
		Name:  "aquaero",

		SensorReportID:    SensorReportID,
		SensorReportSize:  0x191,
		SerialOffset:      0x07,
		FirmwareOffset:    0x0B,
		PowerCyclesOffset: -1,
		HwRevisionOffset:  -1,

		NumSensors:          8,
		SensorsStart:        0x65,
		NumVirtualSensors:   8,
		VirtualSensorsStart: 0x85,

		NumFlowSensors:   1,
		FlowSensorsStart: 0xF9,

		NumFans:          4,
		FanSensorOffsets: []int{0x169, 0x173, 0x17D, 0x187},
		Fan:              FanLayout{Percent: 0x02, Voltage: 0x04, Current: 0x06, Power: 0x08, Speed: 0x00},
		PowerScale:       10000,

		DissipatedPowerOffset: -1,

		// The Aquaero firmware neither checks a CRC nor wants the persist
		// acknowledgement; it applies the buffer as soon as it arrives.
		CtrlReportID:   AquaeroCtrlReportID,
		CtrlReportSize: 0xA93,
		CtrlFanOffsets: []int{0x20C, 0x220, 0x234, 0x248},
		TempCtrlOffset: 0xDC,
		TempSrcOffsets: []int{0x2BB, 0x33B, 0x3BB, 0x43B},
		Curves: []CurveLayout{
			aquaeroCurve(0x274), aquaeroCurve(0x2F4), aquaeroCurve(0x374), aquaeroCurve(0x3F4),
		},

		Caps: CapCtrl | CapPacedCtrl | CapFlow | CapOffsetEnable,

		TempLabels:        fanLabels("Sensor %d", 8),
		VirtualTempLabels: fanLabels("Virtual sensor %d", 8),
		FlowLabels:        []string{"Flow 1"},
		SpeedLabels:       fanLabels("Fan %d speed", 4),
		PowerLabels:       fanLabels("Fan %d power", 4),
		VoltageLabels:     fanLabels("Fan %d voltage", 4),
		CurrentLabels:     fanLabels("Fan %d current", 4),
	},

	AquastreamUltimate: {
		Model: AquastreamUltimate,
		Name:  "aquastreamultimate",

		SensorReportID:    SensorReportID,
		SensorReportSize:  0x5B,
		SerialOffset:      0x03,
		FirmwareOffset:    0x0D,
		PowerCyclesOffset: 0x18,
		// Sub-revision decides which control attributes are writable; it is
		// only known once the first report arrives.
		HwRevisionOffset: 0x0F,

		NumSensors:   1,
		SensorsStart: 0x2D,

		NumFans:          1,
		FanSensorOffsets: []int{0x51},
		Fan:              FanLayout{Percent: 0x00, Voltage: 0x02, Current: 0x04, Power: 0x06, Speed: 0x08},
		PowerScale:       10000,

		DissipatedPowerOffset: -1,
		TempCtrlOffset:        -1,

		TempLabels:    []string{"Coolant temp"},
		SpeedLabels:   []string{"Pump speed"},
		PowerLabels:   []string{"Pump power"},
		VoltageLabels: []string{"Pump voltage"},
		CurrentLabels: []string{"Pump current"},
	},

	AquastreamXT: {
		Model: AquastreamXT,
		Name:  "aquastreamxt",

		SensorReportID:    0,
		SerialOffset:      0x3A,
		FirmwareOffset:    0x32,
		PowerCyclesOffset: -1,
		HwRevisionOffset:  -1,

		NumSensors:   3,
		SensorsStart: 0x13,

		// Little-endian records, no power readout on this generation.
		NumFans:          2,
		FanSensorOffsets: []int{0x05, 0x0B},
		Fan:              FanLayout{Percent: -1, Voltage: 0x00, Current: 0x02, Power: -1, Speed: 0x04},

		DissipatedPowerOffset: -1,
		TempCtrlOffset:        -1,

		StatusReportID:   0x04,
		StatusReportSize: 0x42,

		Caps: CapLegacyPoll,

		TempLabels:    []string{"Fan IC temp", "External sensor", "Coolant temp"},
		SpeedLabels:   []string{"Fan speed", "Pump speed"},
		VoltageLabels: []string{"Fan voltage", "Pump voltage"},
		CurrentLabels: []string{"Fan current", "Pump current"},
	},

	Poweradjust3: {
		Model: Poweradjust3,
		Name:  "poweradjust3",

		SensorReportID:    0,
		SerialOffset:      -1,
		FirmwareOffset:    -1,
		PowerCyclesOffset: -1,
		HwRevisionOffset:  -1,

		NumSensors:   1,
		SensorsStart: 0x03,

		DissipatedPowerOffset: -1,
		TempCtrlOffset:        -1,

		StatusReportID:   0x03,
		StatusReportSize: 0x32,

		Caps: CapLegacyPoll,

		TempLabels: []string{"External sensor"},
	},
}
