package aquacomputer

import (
	"context"
	"fmt"

	"github.com/sstallion/go-hid"
)

// VendorAquacomputer is the USB vendor id shared by the whole family.
const VendorAquacomputer = 0x0C70

// products maps USB product ids to models.
var products = map[uint16]Model{
	0xF00E: D5Next,
	0xF00A: Farbwerk,
	0xF010: Farbwerk360,
	0xF011: Octo,
	0xF00D: Quadro,
	0xF012: HighFlowNext,
	0xF001: Aquaero,
	0xF00B: AquastreamUltimate,
	0xF0B6: AquastreamXT,
	0xF0BD: Poweradjust3,
}

// ModelForProduct maps a USB product id to a model.
func ModelForProduct(pid uint16) (Model, bool) {
	m, ok := products[pid]
	return m, ok
}

// HIDDevice couples a Device with the hidapi handle behind its transport.
type HIDDevice struct {
	*Device

	handle *hid.Device
	path   string
}

// Discover enumerates the connected units of the family without opening
// them.
func Discover() ([]hid.DeviceInfo, error) {
	var infos []hid.DeviceInfo
	err := hid.Enumerate(VendorAquacomputer, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
		if _, ok := products[info.ProductID]; ok {
			infos = append(infos, *info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hid enumerate: %w", err)
	}
	return infos, nil
}

// OpenPath opens one unit at a hidapi platform path.
func OpenPath(path string) (*HIDDevice, error) {
	var model Model
	found := false
	err := hid.Enumerate(VendorAquacomputer, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
		if info.Path != path {
			return nil
		}
		m, ok := products[info.ProductID]
		if !ok {
			return fmt.Errorf("%w: product %04x", ErrUnsupported, info.ProductID)
		}
		model, found = m, true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hid enumerate: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: no device at %s", ErrNotFound, path)
	}
	return open(model, path)
}

// OpenAuto opens the first connected unit of the family.
func OpenAuto() (*HIDDevice, error) {
	infos, err := Discover()
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: no Aquacomputer device connected", ErrNotFound)
	}
	return open(products[infos[0].ProductID], infos[0].Path)
}

func open(model Model, path string) (*HIDDevice, error) {
	handle, err := hid.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("hid open %s: %w", path, err)
	}

	device, err := New(model, &hidTransport{handle: handle})
	if err != nil {
		handle.Close()
		return nil, err
	}

	return &HIDDevice{Device: device, handle: handle, path: path}, nil
}

// Path returns the hidapi platform path the device was opened at.
func (d *HIDDevice) Path() string { return d.path }

// Listen reads push reports until the context is cancelled. Legacy models
// have nothing to listen to and return immediately.
func (d *HIDDevice) Listen(ctx context.Context) error {
	if d.Profile().Caps.Has(CapLegacyPoll) {
		return nil
	}

	buf := make([]byte, d.Profile().SensorReportSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := d.handle.ReadWithTimeout(buf, SensorReportInterval)
		if err == hid.ErrTimeout {
			continue
		}
		if err != nil {
			return fmt.Errorf("hid read: %w", err)
		}
		if n == 0 {
			continue
		}
		d.HandleReport(buf[:n])
	}
}

func (d *HIDDevice) Close() error {
	return d.handle.Close()
}

// hidTransport adapts a hidapi handle to the feature-report contract:
// buffers carry the report id in their first byte, both directions.
type hidTransport struct {
	handle *hid.Device
}

func (t *hidTransport) GetFeatureReport(id byte, size int) ([]byte, error) {
	buf := make([]byte, size)
	buf[0] = id
	n, err := t.handle.GetFeatureReport(buf)
	if err != nil {
		return nil, fmt.Errorf("get feature report %#x: %w", id, err)
	}
	return buf[:n], nil
}

func (t *hidTransport) SetFeatureReport(id byte, data []byte) error {
	if len(data) == 0 || data[0] != id {
		return fmt.Errorf("feature report %#x: malformed buffer", id)
	}
	if _, err := t.handle.SendFeatureReport(data); err != nil {
		return fmt.Errorf("send feature report %#x: %w", id, err)
	}
	return nil
}

// Init initializes the hidapi library. Call once before any open.
func Init() error { return hid.Init() }

// Exit releases the hidapi library.
func Exit() error { return hid.Exit() }
