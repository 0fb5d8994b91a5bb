// Package config handles platform configuration
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

// Hardware backends.
const (
	BackendLocal = "local"
	BackendADB   = "adb"
)

type Config struct {
	HTTPAddr            string   `env:"HTTP_ADDR" validate:"required,hostname_port"`
	GRPCAddr            string   `env:"GRPC_ADDR" validate:"required,hostname_port"`
	Backend             string   `env:"BACKEND" validate:"oneof=local adb"`
	ADBPath             string   `env:"ADB_PATH" validate:"required_if=Backend adb"`
	ADBSerial           string   `env:"ADB_SERIAL"`
	SysfsRoot           string   `env:"SYSFS_ROOT" validate:"required"`
	EtcRoot             string   `env:"ETC_ROOT" validate:"required"`
	InputDevices        []string `env:"INPUT_DEVICES"`
	AllowedOrigins      []string `env:"ALLOWED_ORIGINS" validate:"dive,required"`
	MicSampleRate       int      `env:"MIC_SAMPLE_RATE" validate:"gte=8000,lte=192000"`
	MicBlockFloor       int      `env:"MIC_BLOCK_FLOOR" validate:"gte=256,lte=65536"`
	MicWindowMS         int      `env:"MIC_WINDOW_MS" validate:"gte=100,lte=60000"`
	MicStreamIntervalMS int      `env:"MIC_STREAM_INTERVAL_MS" validate:"gte=0,lte=5000"`
	SpeakerTimeoutMS    int      `env:"SPEAKER_TIMEOUT_MS" validate:"gte=100,lte=60000"`
	VibrationMS         int      `env:"VIBRATION_MS" validate:"gte=10,lte=10000"`
	RateLimitPerSec     float64  `env:"RATE_LIMIT_PER_SEC" validate:"gte=0"`
	LogLevel            string   `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

func Load() *Config {
	return &Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8000"),
		GRPCAddr:            getEnv("GRPC_ADDR", ":50051"),
		Backend:             strings.ToLower(getEnv("BACKEND", BackendLocal)),
		ADBPath:             getEnv("ADB_PATH", "adb"),
		ADBSerial:           getEnv("ADB_SERIAL", ""),
		SysfsRoot:           getEnv("SYSFS_ROOT", "/sys"),
		EtcRoot:             getEnv("ETC_ROOT", "/etc"),
		InputDevices:        getEnvList("INPUT_DEVICES", nil),
		AllowedOrigins:      getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		MicSampleRate:       getEnvInt("MIC_SAMPLE_RATE", 44100),
		MicBlockFloor:       getEnvInt("MIC_BLOCK_FLOOR", 4096),
		MicWindowMS:         getEnvInt("MIC_WINDOW_MS", 5000),
		MicStreamIntervalMS: getEnvInt("MIC_STREAM_INTERVAL_MS", 50),
		SpeakerTimeoutMS:    getEnvInt("SPEAKER_TIMEOUT_MS", 3000),
		VibrationMS:         getEnvInt("VIBRATION_MS", 500),
		RateLimitPerSec:     getEnvFloat("RATE_LIMIT_PER_SEC", 30),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report env var names instead of struct field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// Validate checks ranges and enumerations, reporting every bad variable.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Wrap(err, apperrors.CodeConfigInvalid, "invalid configuration")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Field(), describe(fe)))
	}
	return apperrors.New(apperrors.CodeConfigInvalid, strings.Join(msgs, "; ")).
		WithMetadata("fields", strconv.Itoa(len(verrs)))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "hostname_port":
		return "must be a host:port address"
	default:
		return fmt.Sprintf("failed validation '%s'", fe.Tag())
	}
}

func (c *Config) MicWindow() time.Duration { return ms(c.MicWindowMS) }

func (c *Config) MicStreamInterval() time.Duration { return ms(c.MicStreamIntervalMS) }

func (c *Config) SpeakerTimeout() time.Duration { return ms(c.SpeakerTimeoutMS) }

func (c *Config) VibrationPulse() time.Duration { return ms(c.VibrationMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
