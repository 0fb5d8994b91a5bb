package buttons

import "time"

// VolumeChange derives a volume event from a (previous, new) level pair.
// Equal levels produce nothing.
func VolumeChange(prev, next int) (Event, bool) {
	switch {
	case next > prev:
		return VolumeUp, true
	case next < prev:
		return VolumeDown, true
	default:
		return "", false
	}
}

// Translator maps key transitions to channel events. It is not safe for
// concurrent use; a hub owns one per source run.
type Translator struct {
	unlockWindow time.Duration

	screenOn bool
	wokeAt   time.Time
	waking   bool
	volume   int
}

// NewTranslator creates a translator that assumes the screen starts on.
func NewTranslator(unlockWindow time.Duration) *Translator {
	if unlockWindow <= 0 {
		unlockWindow = DefaultUnlockWindow
	}
	return &Translator{unlockWindow: unlockWindow, screenOn: true}
}

// Translate returns the channel event for ev, if any.
func (t *Translator) Translate(ev KeyEvent) (Channel, Event, bool) {
	switch ev.Code {
	case KeyPower:
		return t.power(ev)
	case KeyVolumeUp, KeyVolumeDown:
		if ev.Action != KeyDown {
			return "", "", false
		}
		prev := t.volume
		if ev.Code == KeyVolumeUp {
			t.volume++
		} else {
			t.volume--
		}
		e, ok := VolumeChange(prev, t.volume)
		return VolumeChannel, e, ok
	default:
		return "", "", false
	}
}

func (t *Translator) power(ev KeyEvent) (Channel, Event, bool) {
	switch ev.Action {
	case KeyDown:
		t.screenOn = !t.screenOn
		if !t.screenOn {
			t.waking = false
			return PowerChannel, ScreenOff, true
		}
		t.waking = true
		t.wokeAt = ev.Time
		return PowerChannel, ScreenOn, true
	case KeyUp:
		if !t.waking {
			return "", "", false
		}
		t.waking = false
		if ev.Time.Sub(t.wokeAt) <= t.unlockWindow {
			return PowerChannel, UserPresent, true
		}
	}
	return "", "", false
}
