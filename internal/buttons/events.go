// Package buttons turns raw hardware key input into power and volume button
// event streams.
package buttons

import "time"

// Channel names an event stream.
type Channel string

const (
	PowerChannel  Channel = "power_button"
	VolumeChannel Channel = "volume_buttons"
)

// Event is a button event as delivered to listeners.
type Event string

const (
	ScreenOff   Event = "SCREEN_OFF"
	ScreenOn    Event = "SCREEN_ON"
	UserPresent Event = "USER_PRESENT"
	VolumeUp    Event = "VOLUME_UP"
	VolumeDown  Event = "VOLUME_DOWN"
)

// Linux input key codes.
const (
	KeyVolumeDown uint16 = 114
	KeyVolumeUp   uint16 = 115
	KeyPower      uint16 = 116
)

var keyNames = map[string]uint16{
	"KEY_VOLUMEDOWN": KeyVolumeDown,
	"KEY_VOLUMEUP":   KeyVolumeUp,
	"KEY_POWER":      KeyPower,
}

// KeyAction is the evdev value of an EV_KEY record.
type KeyAction int32

const (
	KeyUp     KeyAction = 0
	KeyDown   KeyAction = 1
	KeyRepeat KeyAction = 2
)

// KeyEvent is one key transition from a raw source.
type KeyEvent struct {
	Code   uint16
	Action KeyAction
	Time   time.Time
}

const (
	// DefaultUnlockWindow bounds how long after SCREEN_ON the release of the
	// waking press still counts as the user arriving.
	DefaultUnlockWindow = 2 * time.Second

	// DefaultBufferSize is the per-subscriber channel capacity.
	DefaultBufferSize = 16
)
