package hardware

import (
	"context"
	"testing"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/config"
	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

func testConfig(backend string) *config.Config {
	return &config.Config{
		Backend:          backend,
		ADBPath:          "adb",
		SysfsRoot:        "/nonexistent/sys",
		EtcRoot:          "/nonexistent/etc",
		MicSampleRate:    22050,
		MicBlockFloor:    2048,
		MicWindowMS:      1000,
		SpeakerTimeoutMS: 500,
		VibrationMS:      100,
	}
}

func TestNewBackends(t *testing.T) {
	for _, backend := range []string{config.BackendLocal, config.BackendADB} {
		t.Run(backend, func(t *testing.T) {
			set, err := New(testConfig(backend))
			if err != nil {
				t.Fatalf("New() = %v", err)
			}
			if set.Mic == nil || set.Speaker == nil || set.Vibration == nil ||
				set.Battery == nil || set.Device == nil || set.Buttons == nil {
				t.Fatalf("incomplete set: %+v", set)
			}
			if got := set.Mic.Config().SampleRate; got != 22050 {
				t.Errorf("mic sample rate = %d, want 22050", got)
			}
			if got := set.Mic.Config().BlockFloor; got != 2048 {
				t.Errorf("mic block floor = %d, want 2048", got)
			}
		})
	}
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(testConfig("bluetooth"))
	if !apperrors.IsCode(err, apperrors.CodeConfigInvalid) {
		t.Errorf("New() = %v, want CONFIG_INVALID", err)
	}
}

func TestADBAudioUnavailable(t *testing.T) {
	set, err := New(testConfig(config.BackendADB))
	if err != nil {
		t.Fatal(err)
	}

	res := set.Mic.Run(context.Background())
	if res.Pass || !apperrors.IsCode(res.Err, apperrors.CodeHardwareUnavailable) {
		t.Errorf("mic Run() = %+v, want HARDWARE_UNAVAILABLE", res)
	}

	sp := set.Speaker.Run(context.Background())
	if sp.Pass || !apperrors.IsCode(sp.Err, apperrors.CodeHardwareUnavailable) {
		t.Errorf("speaker Run() = %+v, want HARDWARE_UNAVAILABLE", sp)
	}
}

func TestLocalBatteryFallsBack(t *testing.T) {
	set, err := New(testConfig(config.BackendLocal))
	if err != nil {
		t.Fatal(err)
	}
	info, tier, err := set.Battery.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() = %v", err)
	}
	if tier != "fallback" || info.Level != 50 {
		t.Errorf("Collect() = level %d tier %s, want fallback 50", info.Level, tier)
	}
}
