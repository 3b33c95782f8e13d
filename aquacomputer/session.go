package aquacomputer

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Transport is the HID collaborator. It is synchronous and blocking; report
// buffers carry the report id in their first byte, both ways.
type Transport interface {
	GetFeatureReport(id byte, size int) ([]byte, error)
	SetFeatureReport(id byte, data []byte) error
}

// Patch is one in-place field write against a control image.
type Patch struct {
	Offset int
	Value  uint16
	Width  FieldWidth
}

// ApplyPatches applies field writes to a local image copy. Pure, no I/O.
func ApplyPatches(image []byte, patches ...Patch) error {
	for _, patch := range patches {
		if err := checkPatch(len(image), patch); err != nil {
			return err
		}
		switch patch.Width {
		case Width8:
			image[patch.Offset] = byte(patch.Value)
		case Width16BE:
			binary.BigEndian.PutUint16(image[patch.Offset:], patch.Value)
		case Width16LE:
			binary.LittleEndian.PutUint16(image[patch.Offset:], patch.Value)
		}
	}
	return nil
}

func checkPatch(size int, patch Patch) error {
	width := 2
	if patch.Width == Width8 {
		width = 1
		if patch.Value > 0xFF {
			return fmt.Errorf("%w: %#x does not fit in one byte", ErrOutOfRange, patch.Value)
		}
	}
	if patch.Offset < 0 || patch.Offset+width > size {
		return fmt.Errorf("%w: offset %#x outside control buffer", ErrOutOfRange, patch.Offset)
	}
	return nil
}

// Session owns the read-modify-write discipline against one device's
// control buffer: exclusive access and request pacing. The legacy status
// poll shares the same lock, so a status fetch and a control transaction
// never interleave on one device.
type Session struct {
	profile *DeviceProfile
	tr      Transport

	mu     sync.Mutex
	lastOp time.Time
}

func newSession(p *DeviceProfile, tr Transport) *Session {
	return &Session{profile: p, tr: tr}
}

// FetchControlImage returns a private copy of the device's full control
// buffer. Every mutation starts from a fresh fetch so that fields outside
// the transaction are preserved byte for byte.
func (s *Session) FetchControlImage() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	image, err := s.fetch()
	if err != nil {
		return nil, err
	}

	copied := make([]byte, len(image))
	copy(copied, image)
	return copied, nil
}

// Commit checksums and writes a full control image, then sends the persist
// acknowledgement on models that require it. The acknowledgement's failure
// is surfaced even though the primary write already landed: the device has
// no inverse operation to roll back to.
func (s *Session) Commit(image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(image)
}

// ReadField fetches the control buffer and extracts one field. Used for
// control-only values the sensor report never carries.
func (s *Session) ReadField(offset int, width FieldWidth) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	image, err := s.fetch()
	if err != nil {
		return 0, err
	}
	return extractField(image, offset, width)
}

// WriteField runs a whole fetch-patch-commit transaction for one field.
func (s *Session) WriteField(offset int, value uint16, width FieldWidth) error {
	return s.WriteFields(Patch{Offset: offset, Value: value, Width: width})
}

// WriteFields runs one transaction applying every patch atomically: all of
// them land in the same control image, sent as a single report.
func (s *Session) WriteFields(patches ...Patch) error {
	// Reject before any I/O happens.
	for _, patch := range patches {
		if err := checkPatch(s.profile.CtrlReportSize, patch); err != nil {
			return err
		}
	}

	return s.Update(func(image []byte) error {
		return ApplyPatches(image, patches...)
	})
}

// Update runs fn against a freshly fetched image and commits the result.
// The exclusive lock is held for the whole sequence; if fn or the fetch
// fails the device is left untouched.
func (s *Session) Update(fn func(image []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	image, err := s.fetch()
	if err != nil {
		return err
	}
	if err = fn(image); err != nil {
		return err
	}
	return s.commit(image)
}

// PollStatus synchronously fetches the legacy status report. It shares the
// session lock with control transactions.
func (s *Session) PollStatus() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.profile.Caps.Has(CapLegacyPoll) {
		return nil, fmt.Errorf("%w: %s has no status report", ErrUnsupported, s.profile.Name)
	}

	raw, err := s.get(s.profile.StatusReportID, s.profile.StatusReportSize)
	if err != nil {
		return nil, err
	}

	copied := make([]byte, len(raw))
	copy(copied, raw)
	return copied, nil
}

// fetch gets the full control report. Callers hold mu.
func (s *Session) fetch() ([]byte, error) {
	if !s.profile.Caps.Has(CapCtrl) {
		return nil, fmt.Errorf("%w: %s has no control buffer", ErrUnsupported, s.profile.Name)
	}
	return s.get(s.profile.CtrlReportID, s.profile.CtrlReportSize)
}

func (s *Session) get(report byte, size int) ([]byte, error) {
	s.pace()
	raw, err := s.tr.GetFeatureReport(report, size)
	s.lastOp = time.Now()
	if err != nil {
		return nil, fmt.Errorf("%w: get report %#02x: %s", ErrNoData, report, err)
	}
	if len(raw) < size {
		return nil, fmt.Errorf("%w: report %#02x: got %d bytes, want %d", ErrTruncated, report, len(raw), size)
	}
	return raw, nil
}

func (s *Session) commit(image []byte) error {
	if !s.profile.Caps.Has(CapCtrl) {
		return fmt.Errorf("%w: %s has no control buffer", ErrUnsupported, s.profile.Name)
	}
	if len(image) != s.profile.CtrlReportSize {
		return fmt.Errorf("%w: image is %d bytes, control buffer is %d", ErrOutOfRange, len(image), s.profile.CtrlReportSize)
	}

	if s.profile.Caps.Has(CapChecksum) {
		sum := Checksum(image[s.profile.ChecksumStart : s.profile.ChecksumStart+s.profile.ChecksumLength])
		binary.BigEndian.PutUint16(image[s.profile.ChecksumOffset:], sum)
	}

	s.pace()
	err := s.tr.SetFeatureReport(s.profile.CtrlReportID, image)
	s.lastOp = time.Now()
	if err != nil {
		return fmt.Errorf("control write: %w", err)
	}

	if s.profile.Caps.Has(CapSecondaryReport) {
		err = s.tr.SetFeatureReport(SecondaryCtrlReportID, secondaryCtrlReport)
		s.lastOp = time.Now()
		if err != nil {
			// The primary write already landed; the caller must know the
			// persist step failed anyway.
			return fmt.Errorf("persist acknowledgement: %w", err)
		}
	}

	return nil
}

// pace suspends until the firmware's minimum inter-operation delay has
// elapsed. This is the only blocking point besides the transport itself.
func (s *Session) pace() {
	if !s.profile.Caps.Has(CapPacedCtrl) {
		return
	}
	if wait := CtrlReportDelay - time.Since(s.lastOp); wait > 0 {
		time.Sleep(wait)
	}
}

func extractField(image []byte, offset int, width FieldWidth) (uint16, error) {
	if err := checkPatch(len(image), Patch{Offset: offset, Width: width}); err != nil {
		return 0, err
	}
	switch width {
	case Width8:
		return uint16(image[offset]), nil
	case Width16LE:
		return le16(image, offset), nil
	default:
		return be16(image, offset), nil
	}
}
