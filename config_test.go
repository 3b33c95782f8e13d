package aquad

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aquad.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
debug: true
socket: /run/aquad/aquad.sock
device: /dev/hidraw3
fan_settings:
  fan1:
    label: Pump
    fan_step_up: 5s
    fan_step_down: 30s
    curve_points:
      - 20%:
          "coretemp: Package id 0": 40
      - 60%:
          "coretemp: Package id 0": 60
  fan2:
    label: Radiator
    curve_points:
      - 30%:
          "coretemp: Package id 0": 50
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if !cfg.Debug || cfg.Socket != "/run/aquad/aquad.sock" || cfg.Device != "/dev/hidraw3" {
		t.Errorf("top-level fields: %+v", cfg)
	}

	pump := cfg.FanSettings["fan1"]
	if pump.ID != 0 || pump.Label != "Pump" {
		t.Errorf("fan1 = %+v", pump)
	}
	if pump.FanSetUp.Duration != 5*time.Second || pump.FanSetDown.Duration != 30*time.Second {
		t.Errorf("fan1 delays = %v/%v", pump.FanSetUp, pump.FanSetDown)
	}
	if len(pump.CurvePoints) != 2 {
		t.Fatalf("fan1 has %d curve points", len(pump.CurvePoints))
	}
	if pump.CurvePoints[0][20]["coretemp: Package id 0"] != 40 {
		t.Errorf("fan1 curve points = %+v", pump.CurvePoints)
	}

	if cfg.FanSettings["fan2"].ID != 1 {
		t.Errorf("fan2 ID = %d", cfg.FanSettings["fan2"].ID)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			"invalid fan name",
			"fan_settings:\n  pump:\n    curve_points:\n      - 20%:\n          cpu: 40\n",
		},
		{
			"fan number out of range",
			"fan_settings:\n  fan9:\n    curve_points:\n      - 20%:\n          cpu: 40\n",
		},
		{
			"fan zero",
			"fan_settings:\n  fan0:\n    curve_points:\n      - 20%:\n          cpu: 40\n",
		},
		{
			"no curve points",
			"fan_settings:\n  fan1:\n    label: Pump\n",
		},
		{
			"pwm above 100",
			"fan_settings:\n  fan1:\n    curve_points:\n      - 120%:\n          cpu: 40\n",
		},
		{
			"pwm without percent sign",
			"fan_settings:\n  fan1:\n    curve_points:\n      - \"20\":\n          cpu: 40\n",
		},
		{
			"decreasing pwm",
			"fan_settings:\n  fan1:\n    curve_points:\n      - 60%:\n          cpu: 40\n      - 20%:\n          cpu: 60\n",
		},
		{
			"no thresholds",
			"fan_settings:\n  fan1:\n    curve_points:\n      - 20%: {}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load should fail")
			}
		})
	}
}
