// Package diagnostics dispatches named method calls and event stream
// subscriptions to the hardware components.
package diagnostics

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/battery"
	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/hardware"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
)

// Method channels.
const (
	DiagnosticsChannel = "diagnostics"
	AudioChannel       = "audio"
)

// Event channels.
const (
	AmplitudeChannel = "audio_amplitude"
	PowerChannel     = "power_button"
	VolumeChannel    = "volume_buttons"
)

// Args are the named arguments of a method call.
type Args map[string]any

type handler func(ctx context.Context, args Args) (any, error)

// Service routes calls to the components of one hardware set.
type Service struct {
	hw      *hardware.Set
	methods map[string]map[string]handler
}

// New creates a service over hw.
func New(hw *hardware.Set) *Service {
	s := &Service{hw: hw}
	s.methods = map[string]map[string]handler{
		DiagnosticsChannel: {
			"testSpeaker":                s.testSpeaker,
			"testMicrophone":             s.testMicrophone,
			"testVibration":              s.testVibration,
			"getDeviceInfo":              s.deviceInfo,
			"getMarketingName":           s.marketingName,
			"getBatteryInfo":             s.batteryInfo,
			"getBatteryHealthAssessment": s.batteryAssessment,
			"getBatteryRecommendations":  s.batteryRecommendations,
			"runDiagnostics":             s.runDiagnostics,
		},
		AudioChannel: {
			"testMicrophone": s.testMicrophone,
		},
	}
	return s
}

// NormalizeChannel strips a namespace prefix such as
// "trade_In.Internal_Data/" from a channel name.
func NormalizeChannel(channel string) string {
	if i := strings.LastIndexByte(channel, '/'); i >= 0 {
		return channel[i+1:]
	}
	return channel
}

// Methods lists the methods of channel in name order.
func (s *Service) Methods(channel string) []string {
	m := s.methods[NormalizeChannel(channel)]
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MethodChannels lists the channels Call accepts.
func MethodChannels() []string {
	return []string{AudioChannel, DiagnosticsChannel}
}

// Call invokes method on channel. Unknown channels or methods are
// NOT_IMPLEMENTED.
func (s *Service) Call(ctx context.Context, channel, method string, args Args) (any, error) {
	channel = NormalizeChannel(channel)
	ctx, span := trace.StartSpan(ctx, channel+"."+method)
	defer span.End()
	log := trace.Logger(ctx)

	h, ok := s.methods[channel][method]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotImplemented, "method %s not implemented on channel %s", method, channel).
			WithMetadata("channel", channel).
			WithMetadata("method", method)
	}

	start := time.Now()
	res, err := h(ctx, args)
	if err != nil {
		span.SetAttr("error", err.Error())
		log.Warn("method call failed", "channel", channel, "method", method, "error", err)
		return nil, err
	}
	log.Info("method call complete", "channel", channel, "method", method, "duration", time.Since(start))
	return res, nil
}

func (s *Service) testSpeaker(ctx context.Context, _ Args) (any, error) {
	return s.hw.Speaker.Test(ctx), nil
}

func (s *Service) testMicrophone(ctx context.Context, _ Args) (any, error) {
	return s.hw.Mic.Test(ctx), nil
}

func (s *Service) testVibration(ctx context.Context, _ Args) (any, error) {
	return s.hw.Vibration.Test(ctx), nil
}

func (s *Service) deviceInfo(ctx context.Context, _ Args) (any, error) {
	info, err := s.hw.Device.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return info.ToMap(), nil
}

func (s *Service) marketingName(ctx context.Context, _ Args) (any, error) {
	return s.hw.Device.MarketingName(ctx)
}

func (s *Service) battery(ctx context.Context, what string) (battery.Info, error) {
	info, tier, err := s.hw.Battery.Collect(ctx)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.CodeBatteryError) {
			err = apperrors.Wrapf(err, apperrors.CodeBatteryError, "failed to get %s", what)
		}
		return battery.Info{}, err
	}
	trace.Logger(ctx).Debug("battery snapshot", "tier", tier, "level", info.Level)
	return info, nil
}

func (s *Service) batteryInfo(ctx context.Context, _ Args) (any, error) {
	info, err := s.battery(ctx, "battery info")
	if err != nil {
		return nil, err
	}
	return info.ToMap(), nil
}

func (s *Service) batteryAssessment(ctx context.Context, _ Args) (any, error) {
	info, err := s.battery(ctx, "battery health assessment")
	if err != nil {
		return nil, err
	}
	return battery.Assessment(info), nil
}

func (s *Service) batteryRecommendations(ctx context.Context, _ Args) (any, error) {
	info, err := s.battery(ctx, "battery recommendations")
	if err != nil {
		return nil, err
	}
	return battery.Recommendations(info), nil
}

// runDiagnostics runs the three self-tests in sequence.
func (s *Service) runDiagnostics(ctx context.Context, _ Args) (any, error) {
	speakerOK := s.hw.Speaker.Test(ctx)
	micOK := s.hw.Mic.Test(ctx)
	vibrationOK := s.hw.Vibration.Test(ctx)
	return map[string]any{
		"speakerWorking":    speakerOK,
		"microphoneWorking": micOK,
		"vibrationWorking":  vibrationOK,
	}, nil
}
