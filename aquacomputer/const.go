package aquacomputer

import (
	"errors"
	"time"
)

const (
	// Report ids shared by the current Aquacomputer device generation.
	SensorReportID        = 0x01
	CtrlReportID          = 0x03
	SecondaryCtrlReportID = 0x02

	// The Aquaero multiplexes its control buffer on a dedicated report id.
	AquaeroCtrlReportID = 0x0B

	SensorSize         = 0x02
	SensorDisconnected = 0x7FFF

	// Push devices emit a sensor report every second. A snapshot older than
	// StatusValidity report periods is expired.
	SensorReportInterval = time.Second
	StatusValidity       = 2

	// Some firmwares choke when control report requests arrive back to back.
	CtrlReportDelay = 200 * time.Millisecond
)

// Report the official software sends after every configuration write. The
// device only persists the new control buffer to flash once it sees this.
var secondaryCtrlReport = []byte{
	0x02, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x34, 0xC6,
}

var (
	ErrNotFound    = errors.New("device not found/plugged")
	ErrWrongReport = errors.New("unexpected report id")
	ErrTruncated   = errors.New("truncated report")
	ErrNoData      = errors.New("no data from device")
	ErrStale       = errors.New("sensor data expired")
	ErrUnsupported = errors.New("not supported by this model")
	ErrOutOfRange  = errors.New("value out of range")
)
