package aquacomputer

import (
	"fmt"
	"time"
)

// Reading is one sensor channel in milli-units. Valid is false when the
// slot carries the disconnected sentinel instead of a measurement.
type Reading struct {
	Value int32 `json:"value"`
	Valid bool  `json:"valid"`
}

// FanReading gathers one fan record. Speed is in RPM, Voltage in mV,
// Current in mA, Power in µW and Percent in percent*100.
type FanReading struct {
	Percent uint16 `json:"percent"`
	Speed   uint16 `json:"speed"`
	Voltage uint32 `json:"voltage"`
	Current uint16 `json:"current"`
	Power   uint32 `json:"power"`
}

// Alarms names the bits of the 32-bit alarm word carried by models with
// CapAlarms.
type Alarms struct {
	Leak            bool   `json:"leak"`
	FlowLow         bool   `json:"flow_low"`
	WaterQuality    bool   `json:"water_quality"`
	Overtemperature bool   `json:"overtemperature"`
	Raw             uint32 `json:"-"`
}

const (
	alarmLeakBit            = 0
	alarmFlowLowBit         = 1
	alarmWaterQualityBit    = 2
	alarmOvertemperatureBit = 3
)

func decodeAlarms(raw uint32) Alarms {
	return Alarms{
		Leak:            GetBit(raw, alarmLeakBit) == 1,
		FlowLow:         GetBit(raw, alarmFlowLowBit) == 1,
		WaterQuality:    GetBit(raw, alarmWaterQualityBit) == 1,
		Overtemperature: GetBit(raw, alarmOvertemperatureBit) == 1,
		Raw:             raw,
	}
}

// Snapshot is one fully decoded telemetry report. It is replaced whole on
// every decode and never mutated afterwards, so concurrent readers can hold
// on to one without seeing a torn update.
type Snapshot struct {
	Serial          [2]uint16 `json:"-"`
	FirmwareVersion uint16    `json:"firmware_version"`
	PowerCycles     uint32    `json:"power_cycles"`

	Temps        []Reading    `json:"temps,omitempty"`
	VirtualTemps []Reading    `json:"virtual_temps,omitempty"`
	Flows        []Reading    `json:"flows,omitempty"`
	Fans         []FanReading `json:"fans,omitempty"`
	Rails        []uint32     `json:"rails,omitempty"`

	DissipatedPower uint32 `json:"dissipated_power,omitempty"`
	Alarms          Alarms `json:"alarms"`

	UpdatedAt time.Time `json:"updated_at"`
}

// SerialNumber renders the two report halves the way the vendor software
// prints them.
func (s *Snapshot) SerialNumber() string {
	return fmt.Sprintf("%05d-%05d", s.Serial[0], s.Serial[1])
}

// Expired reports whether the snapshot is older than the validity window.
func (s *Snapshot) Expired(now time.Time) bool {
	return now.Sub(s.UpdatedAt) > StatusValidity*SensorReportInterval
}
