package aquacomputer

import (
	"errors"
	"testing"
)

func TestProfileFor(t *testing.T) {
	for _, model := range Models() {
		p, err := ProfileFor(model)
		if err != nil {
			t.Fatalf("ProfileFor(%s): %v", model, err)
		}
		if p.Model != model {
			t.Errorf("profile %q registered under model %s", p.Name, model)
		}
	}

	if _, err := ProfileFor(Model(200)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("unknown model should be ErrUnsupported, got %v", err)
	}
}

// Every registered profile must survive its own validation; init would have
// panicked otherwise, this keeps the property visible.
func TestProfilesValidate(t *testing.T) {
	for _, p := range profiles {
		p.validate()
	}
}

func TestProfileValidateRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DeviceProfile)
	}{
		{"sensor offset past report end", func(p *DeviceProfile) { p.SensorsStart = p.SensorReportSize }},
		{"fan count without offsets", func(p *DeviceProfile) { p.NumFans++ }},
		{"label count mismatch", func(p *DeviceProfile) { p.TempLabels = nil }},
		{"checksum trailer outside buffer", func(p *DeviceProfile) { p.ChecksumOffset = p.CtrlReportSize }},
		{"curve points outside buffer", func(p *DeviceProfile) { p.Curves[0].TempBase = p.CtrlReportSize }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := *profiles[D5Next]
			p.Curves = append([]CurveLayout(nil), p.Curves...)
			tt.mutate(&p)

			defer func() {
				if recover() == nil {
					t.Error("validate should panic on a malformed profile")
				}
			}()
			p.validate()
		})
	}
}

func TestModelString(t *testing.T) {
	if got := D5Next.String(); got != "d5next" {
		t.Errorf("D5Next.String() = %q", got)
	}
	if got := Model(200).String(); got != "model(200)" {
		t.Errorf("unknown model String() = %q", got)
	}
}

// Models without fans carry no fan metadata at all, so the accessors bail
// out on the channel count alone.
func TestSensorOnlyProfiles(t *testing.T) {
	for _, model := range []Model{Farbwerk, Farbwerk360, HighFlowNext, Poweradjust3} {
		p, err := ProfileFor(model)
		if err != nil {
			t.Fatal(err)
		}
		if p.NumFans != 0 {
			t.Errorf("%s should have no fan channels", p.Name)
		}
		if p.Caps.Has(CapCtrl) {
			t.Errorf("%s should have no control buffer", p.Name)
		}
	}
}

func TestChecksumWindowCoversCurves(t *testing.T) {
	for _, p := range profiles {
		if !p.Caps.Has(CapChecksum) {
			continue
		}
		end := p.ChecksumStart + p.ChecksumLength
		for i, c := range p.Curves {
			if c.PowerBase+CurvePoints*2 > end {
				t.Errorf("%s fan %d curve extends past the checksum window", p.Name, i)
			}
		}
		if p.ChecksumOffset < end {
			t.Errorf("%s stores its checksum inside its own window", p.Name)
		}
	}
}
