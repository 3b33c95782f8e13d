package aquacomputer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// fakeTransport serves feature reports from in-memory buffers and records
// every write. It also flags interleaved transactions: a fetch while a
// previous fetch has not been committed yet means two read-modify-write
// sequences raced.
type fakeTransport struct {
	mu      sync.Mutex
	reports map[byte][]byte

	writes      [][]byte
	secondaries int

	inFlight      bool
	overlapped    bool
	failSecondary bool
}

func newFakeTransport(reports map[byte][]byte) *fakeTransport {
	return &fakeTransport{reports: reports}
}

func (t *fakeTransport) GetFeatureReport(id byte, size int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, ok := t.reports[id]
	if !ok {
		return nil, fmt.Errorf("no report %#x", id)
	}
	if id == CtrlReportID {
		if t.inFlight {
			t.overlapped = true
		}
		t.inFlight = true
	}

	copied := make([]byte, len(raw))
	copy(copied, raw)
	return copied[:min(size, len(copied))], nil
}

func (t *fakeTransport) SetFeatureReport(id byte, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == SecondaryCtrlReportID {
		t.secondaries++
		if t.failSecondary {
			return errors.New("device nacked")
		}
		return nil
	}

	t.inFlight = false
	copied := make([]byte, len(data))
	copy(copied, data)
	t.writes = append(t.writes, copied)
	t.reports[id] = copied
	return nil
}

func (t *fakeTransport) lastWrite(tb testing.TB) []byte {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.writes) == 0 {
		tb.Fatal("no control report was written")
	}
	return t.writes[len(t.writes)-1]
}

func d5nextSession(t *testing.T) (*Session, *fakeTransport, *DeviceProfile) {
	t.Helper()
	p, err := ProfileFor(D5Next)
	if err != nil {
		t.Fatal(err)
	}

	ctrl := make([]byte, p.CtrlReportSize)
	ctrl[0] = p.CtrlReportID
	for i := 1; i < len(ctrl); i++ {
		ctrl[i] = byte(i * 7) // recognizable non-zero background
	}

	tr := newFakeTransport(map[byte][]byte{p.CtrlReportID: ctrl})
	return newSession(p, tr), tr, p
}

func TestSessionWriteField(t *testing.T) {
	s, tr, p := d5nextSession(t)

	offset := p.CtrlFanOffsets[0]
	if err := s.WriteField(offset, 7342, Width16BE); err != nil {
		t.Fatal(err)
	}

	written := tr.lastWrite(t)
	if len(written) != p.CtrlReportSize {
		t.Fatalf("wrote %d bytes, control buffer is %d", len(written), p.CtrlReportSize)
	}
	if got := binary.BigEndian.Uint16(written[offset:]); got != 7342 {
		t.Errorf("setpoint on the wire = %d", got)
	}

	// The stored checksum must be the CRC of the checksum window as written.
	want := Checksum(written[p.ChecksumStart : p.ChecksumStart+p.ChecksumLength])
	if got := binary.BigEndian.Uint16(written[p.ChecksumOffset:]); got != want {
		t.Errorf("checksum on the wire = %#04x, want %#04x", got, want)
	}

	// Unpatched bytes survive byte for byte.
	if written[0x100] != byte(0x100*7%256) {
		t.Error("a byte outside the patch was modified")
	}

	if tr.secondaries != 1 {
		t.Errorf("persist acknowledgement sent %d times, want 1", tr.secondaries)
	}
}

func TestSessionWriteFields_Atomic(t *testing.T) {
	s, tr, p := d5nextSession(t)

	err := s.WriteFields(
		Patch{Offset: p.CtrlFanOffsets[0], Value: 1000, Width: Width16BE},
		Patch{Offset: p.CtrlFanOffsets[1], Value: 2000, Width: Width16BE},
	)
	if err != nil {
		t.Fatal(err)
	}

	tr.mu.Lock()
	writes := len(tr.writes)
	tr.mu.Unlock()
	if writes != 1 {
		t.Fatalf("multi-field patch produced %d control writes, want 1", writes)
	}

	written := tr.lastWrite(t)
	if binary.BigEndian.Uint16(written[p.CtrlFanOffsets[0]:]) != 1000 ||
		binary.BigEndian.Uint16(written[p.CtrlFanOffsets[1]:]) != 2000 {
		t.Error("both patches should land in the same image")
	}
}

func TestSessionWriteFields_RejectsBeforeIO(t *testing.T) {
	s, tr, p := d5nextSession(t)

	err := s.WriteFields(
		Patch{Offset: p.CtrlFanOffsets[0], Value: 1000, Width: Width16BE},
		Patch{Offset: p.CtrlReportSize, Value: 1, Width: Width8},
	)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("got %v, want ErrOutOfRange", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.writes) != 0 || tr.inFlight {
		t.Error("a rejected patch list must not touch the device")
	}
}

func TestSessionReadField(t *testing.T) {
	s, tr, p := d5nextSession(t)

	offset := p.CtrlFanOffsets[1]
	tr.mu.Lock()
	binary.BigEndian.PutUint16(tr.reports[p.CtrlReportID][offset:], 6100)
	tr.mu.Unlock()

	got, err := s.ReadField(offset, Width16BE)
	if err != nil {
		t.Fatal(err)
	}
	if got != 6100 {
		t.Errorf("ReadField = %d, want 6100", got)
	}
}

func TestSessionSecondaryFailureSurfaces(t *testing.T) {
	s, tr, p := d5nextSession(t)
	tr.failSecondary = true

	err := s.WriteField(p.CtrlFanOffsets[0], 5000, Width16BE)
	if err == nil {
		t.Fatal("persist failure should surface to the caller")
	}

	// The primary write still happened; the caller needs to know both facts.
	tr.lastWrite(t)
}

func TestSessionExclusiveTransactions(t *testing.T) {
	s, tr, p := d5nextSession(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(v uint16) {
			defer wg.Done()
			if err := s.WriteField(p.CtrlFanOffsets[0], v, Width16BE); err != nil {
				t.Error(err)
			}
		}(uint16(1000 + i))
	}
	wg.Wait()

	if tr.overlapped {
		t.Error("two transactions interleaved on the same device")
	}
}

func TestSessionUpdateFetchesFresh(t *testing.T) {
	s, tr, p := d5nextSession(t)

	// A write on the side between two transactions must be visible to the
	// second one: every mutation starts from a fresh fetch.
	if err := s.WriteField(p.CtrlFanOffsets[0], 1111, Width16BE); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteField(p.CtrlFanOffsets[1], 2222, Width16BE); err != nil {
		t.Fatal(err)
	}

	written := tr.lastWrite(t)
	if binary.BigEndian.Uint16(written[p.CtrlFanOffsets[0]:]) != 1111 {
		t.Error("second transaction lost the first one's field")
	}
}

func TestSessionFetchControlImagePrivateCopy(t *testing.T) {
	s, _, p := d5nextSession(t)

	first, err := s.FetchControlImage()
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		first[i] = 0xAA
	}

	second, err := s.FetchControlImage()
	if err != nil {
		t.Fatal(err)
	}
	if second[p.CtrlFanOffsets[0]] == 0xAA {
		t.Error("mutating a fetched image leaked into the next fetch")
	}
}

func TestSessionUpdateErrorLeavesDeviceUntouched(t *testing.T) {
	s, tr, _ := d5nextSession(t)

	fail := errors.New("caller changed its mind")
	if err := s.Update(func(image []byte) error { return fail }); !errors.Is(err, fail) {
		t.Fatalf("got %v", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.writes) != 0 {
		t.Error("a failed update must not write")
	}
}

func TestSessionNoControlBuffer(t *testing.T) {
	p, err := ProfileFor(HighFlowNext)
	if err != nil {
		t.Fatal(err)
	}
	s := newSession(p, newFakeTransport(nil))

	if _, err := s.FetchControlImage(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("got %v, want ErrUnsupported", err)
	}
	if _, err := s.PollStatus(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("got %v, want ErrUnsupported", err)
	}
}

func TestSessionPollStatus(t *testing.T) {
	p, err := ProfileFor(Poweradjust3)
	if err != nil {
		t.Fatal(err)
	}

	status := make([]byte, p.StatusReportSize)
	status[0] = p.StatusReportID
	binary.LittleEndian.PutUint16(status[p.SensorsStart:], 2210)

	s := newSession(p, newFakeTransport(map[byte][]byte{p.StatusReportID: status}))

	raw, err := s.PollStatus()
	if err != nil {
		t.Fatal(err)
	}

	snap, err := DecodeLegacy(p, raw)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Temps[0].Valid || snap.Temps[0].Value != 22100 {
		t.Errorf("temp = %+v", snap.Temps[0])
	}
}
