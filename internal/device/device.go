// Package device reports identifying information about the device under test.
package device

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/trace"
)

// Field names a platform-provided identity value.
type Field string

const (
	FieldDeviceID      Field = "deviceId"
	FieldManufacturer  Field = "manufacturer"
	FieldModel         Field = "model"
	FieldOSVersion     Field = "osVersion"
	FieldDeviceName    Field = "deviceName"
	FieldBluetoothName Field = "bluetoothName"
	FieldSerial        Field = "serial"
)

// Serial placeholders.
const (
	SerialUnknown          = "Unknown"
	SerialPermissionDenied = "Permission Denied"
)

// MarketingProps are consulted in order for a consumer-facing model name.
var MarketingProps = []string{
	"ro.product.marketname",
	"ro.product.model.name",
	"ro.config.marketing_name",
	"ro.product.vendor.marketname",
	"ro.product.odm.marketname",
	"ro.product.system.marketname",
	"ro.product.model",
	"ro.product.vendor.model",
	"ro.product.name",
}

// Platform reads identity values. Lookup returns an error wrapping
// fs.ErrPermission when the platform refuses access.
type Platform interface {
	Lookup(ctx context.Context, f Field) (string, error)
	Property(ctx context.Context, name string) (string, error)
}

// Info is the device identity record.
type Info struct {
	DeviceID     string `json:"deviceId"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	OSVersion    string `json:"osVersion"`
	Product      string `json:"product"`
	Serial       string `json:"serial"`
}

// ToMap exports the record under its wire names.
func (i Info) ToMap() map[string]any {
	return map[string]any{
		"deviceId":     i.DeviceID,
		"manufacturer": i.Manufacturer,
		"model":        i.Model,
		"osVersion":    i.OSVersion,
		"product":      i.Product,
		"serial":       i.Serial,
	}
}

// Collector assembles Info from a platform.
type Collector struct {
	p Platform
}

// NewCollector creates a collector.
func NewCollector(p Platform) *Collector {
	return &Collector{p: p}
}

// Collect reads the identity record. Only an unreadable model is an error;
// other fields degrade to empty or placeholder values.
func (c *Collector) Collect(ctx context.Context) (Info, error) {
	ctx, span := trace.StartSpan(ctx, "device_info")
	defer span.End()
	log := trace.Logger(ctx)

	model, err := c.p.Lookup(ctx, FieldModel)
	if err != nil || model == "" {
		if err == nil {
			err = errors.New("empty model")
		}
		return Info{}, apperrors.Wrap(err, apperrors.CodeDeviceInfoError, "device model unavailable")
	}

	info := Info{
		DeviceID:     c.optional(ctx, FieldDeviceID),
		Manufacturer: c.optional(ctx, FieldManufacturer),
		Model:        model,
		OSVersion:    c.optional(ctx, FieldOSVersion),
		Product:      c.product(ctx, model),
		Serial:       c.serial(ctx),
	}
	log.Debug("device info collected", "model", info.Model, "manufacturer", info.Manufacturer)
	return info, nil
}

func (c *Collector) optional(ctx context.Context, f Field) string {
	v, err := c.p.Lookup(ctx, f)
	if err != nil {
		trace.Logger(ctx).Debug("device field unavailable", "field", f, "error", err)
		return ""
	}
	return v
}

// product prefers the user-set device name, then the bluetooth name, then
// the model.
func (c *Collector) product(ctx context.Context, model string) string {
	for _, f := range []Field{FieldDeviceName, FieldBluetoothName} {
		if v := c.optional(ctx, f); v != "" {
			return v
		}
	}
	return model
}

func (c *Collector) serial(ctx context.Context) string {
	v, err := c.p.Lookup(ctx, FieldSerial)
	switch {
	case errors.Is(err, fs.ErrPermission):
		return SerialPermissionDenied
	case err != nil || strings.TrimSpace(v) == "":
		return SerialUnknown
	default:
		return v
	}
}

// MarketingName returns the first marketing property that differs from the
// model, or the model itself.
func (c *Collector) MarketingName(ctx context.Context) (string, error) {
	model, err := c.p.Lookup(ctx, FieldModel)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeDeviceInfoError, "device model unavailable")
	}
	for _, key := range MarketingProps {
		v, err := c.p.Property(ctx, key)
		if err != nil {
			continue
		}
		if v = strings.TrimSpace(v); v != "" && v != model {
			return v, nil
		}
	}
	return model, nil
}
