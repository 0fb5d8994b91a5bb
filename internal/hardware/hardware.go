// Package hardware assembles the self-test and telemetry components for one
// backend: the local machine or an Android handset attached over ADB.
package hardware

import (
	"context"
	"log/slog"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/adb"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/audio"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/battery"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/buttons"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/config"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/device"
	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/mic"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/speaker"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/vibration"
)

// Set is everything the diagnostics service drives.
type Set struct {
	Backend   string
	Mic       *mic.Tester
	Speaker   *speaker.Tester
	Vibration *vibration.Tester
	Battery   *battery.Collector
	Device    *device.Collector
	Buttons   *buttons.Hub
}

// New builds the set for cfg.Backend.
func New(cfg *config.Config) (*Set, error) {
	micCfg := mic.Config{
		SampleRate:     cfg.MicSampleRate,
		BlockFloor:     cfg.MicBlockFloor,
		Window:         cfg.MicWindow(),
		StreamInterval: cfg.MicStreamInterval(),
	}

	switch cfg.Backend {
	case config.BackendLocal:
		return &Set{
			Backend:   cfg.Backend,
			Mic:       mic.NewTester(LocalSources, micCfg),
			Speaker:   speaker.NewTester(LocalPlayer(audio.NewPlayer()), cfg.SpeakerTimeout()),
			Vibration: vibration.NewTester(vibration.NewSysfsMotor(cfg.SysfsRoot), cfg.VibrationPulse()),
			Battery:   battery.NewCollector(battery.NewSysfsSource(cfg.SysfsRoot)),
			Device:    device.NewCollector(device.NewLinuxPlatform(cfg.SysfsRoot, cfg.EtcRoot)),
			Buttons:   buttons.NewHub(buttons.NewEvdevSource(cfg.InputDevices)),
		}, nil

	case config.BackendADB:
		shell := adb.NewRunner(cfg.ADBPath, cfg.ADBSerial)
		return &Set{
			Backend:   cfg.Backend,
			Mic:       mic.NewTester(unavailableSources("microphone capture over adb"), micCfg),
			Speaker:   speaker.NewTester(unavailablePlayer("tone playback over adb"), cfg.SpeakerTimeout()),
			Vibration: vibration.NewTester(vibration.NewADBMotor(shell), cfg.VibrationPulse()),
			Battery:   battery.NewCollector(battery.NewADBSource(shell)),
			Device:    device.NewCollector(device.NewADBPlatform(shell)),
			Buttons:   buttons.NewHub(buttons.NewGeteventSource(shell)),
		}, nil

	default:
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "unknown backend %q", cfg.Backend)
	}
}

// LogValue summarizes the set for startup logging.
func (s *Set) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", s.Backend),
		slog.Int("sample_rate", s.Mic.Config().SampleRate),
		slog.Duration("mic_window", s.Mic.Config().Window),
	)
}

// LocalSources yields a fresh portaudio capture source per invocation.
func LocalSources() mic.SampleSource { return audio.NewSource() }

// LocalPlayer adapts a portaudio player to the speaker test.
func LocalPlayer(p *audio.Player) speaker.Player {
	return speaker.PlayerFunc(func(ctx context.Context, tone string) (speaker.Playback, error) {
		pb, err := p.Start(ctx, tone)
		if err != nil {
			return nil, err
		}
		return pb, nil
	})
}

type unavailableSource struct{ reason string }

func (s unavailableSource) Open(int, int) (int, error) {
	return 0, apperrors.New(apperrors.CodeHardwareUnavailable, s.reason+" is not supported")
}

func (s unavailableSource) Read([]int16) (int, error) {
	return 0, apperrors.New(apperrors.CodeHardwareUnavailable, s.reason+" is not supported")
}

func (unavailableSource) Close() error { return nil }

func unavailableSources(reason string) mic.SourceFactory {
	return func() mic.SampleSource { return unavailableSource{reason: reason} }
}

func unavailablePlayer(reason string) speaker.Player {
	return speaker.PlayerFunc(func(context.Context, string) (speaker.Playback, error) {
		return nil, apperrors.New(apperrors.CodeHardwareUnavailable, reason+" is not supported")
	})
}
