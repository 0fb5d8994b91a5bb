package battery

import (
	"context"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
)

// DefaultLevel is reported when not even the charge level can be read.
const DefaultLevel = 50

// Source reads battery state from a platform.
type Source interface {
	// Snapshot reads every field the platform exposes.
	Snapshot(ctx context.Context) (Info, error)
	// Level reads only the charge percentage.
	Level(ctx context.Context) (int, error)
}

// Tier says how much of a snapshot was actually read.
type Tier string

const (
	TierFull     Tier = "full"
	TierBasic    Tier = "basic"
	TierFallback Tier = "fallback"
)

// Collector reads snapshots, degrading to a nominal record rather than failing.
type Collector struct {
	src Source
}

// NewCollector creates a collector over src.
func NewCollector(src Source) *Collector {
	return &Collector{src: src}
}

// Collect returns the best snapshot available. The only error is a
// cancelled or expired ctx.
func (c *Collector) Collect(ctx context.Context) (Info, Tier, error) {
	ctx, span := trace.StartSpan(ctx, "battery_collect")
	defer span.End()
	log := trace.Logger(ctx)

	info, err := c.src.Snapshot(ctx)
	if err == nil {
		span.SetAttr("tier", TierFull)
		return info, TierFull, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Info{}, "", apperrors.Wrap(ctxErr, apperrors.CodeBatteryError, "battery read interrupted")
	}
	log.Warn("battery snapshot failed, using basic info", "error", err)

	level, err := c.src.Level(ctx)
	if err != nil {
		log.Warn("battery level unavailable, using fallback", "error", err)
		span.SetAttr("tier", TierFallback)
		return fallbackInfo(DefaultLevel), TierFallback, nil
	}
	if level <= 0 {
		level = DefaultLevel
	}
	span.SetAttr("tier", TierBasic)
	return fallbackInfo(level), TierBasic, nil
}
