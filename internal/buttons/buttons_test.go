package buttons

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

func TestVolumeChange(t *testing.T) {
	tests := []struct {
		prev, next int
		want       Event
		ok         bool
	}{
		{3, 4, VolumeUp, true},
		{4, 3, VolumeDown, true},
		{5, 5, "", false},
		{-1, 0, VolumeUp, true},
	}
	for _, tt := range tests {
		got, ok := VolumeChange(tt.prev, tt.next)
		if got != tt.want || ok != tt.ok {
			t.Errorf("VolumeChange(%d, %d) = %q, %v; want %q, %v", tt.prev, tt.next, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTranslatorPowerSequence(t *testing.T) {
	base := time.Unix(1700000000, 0)
	tr := NewTranslator(time.Second)

	steps := []struct {
		ev   KeyEvent
		want Event
		ok   bool
	}{
		{KeyEvent{KeyPower, KeyDown, base}, ScreenOff, true},
		{KeyEvent{KeyPower, KeyUp, base.Add(100 * time.Millisecond)}, "", false},
		{KeyEvent{KeyPower, KeyDown, base.Add(2 * time.Second)}, ScreenOn, true},
		{KeyEvent{KeyPower, KeyUp, base.Add(2300 * time.Millisecond)}, UserPresent, true},
		{KeyEvent{KeyPower, KeyDown, base.Add(5 * time.Second)}, ScreenOff, true},
		{KeyEvent{KeyPower, KeyDown, base.Add(6 * time.Second)}, ScreenOn, true},
		{KeyEvent{KeyPower, KeyRepeat, base.Add(6500 * time.Millisecond)}, "", false},
		{KeyEvent{KeyPower, KeyUp, base.Add(8 * time.Second)}, "", false},
	}
	for i, s := range steps {
		ch, got, ok := tr.Translate(s.ev)
		if ok != s.ok || got != s.want {
			t.Fatalf("step %d: Translate() = %q, %v; want %q, %v", i, got, ok, s.want, s.ok)
		}
		if ok && ch != PowerChannel {
			t.Errorf("step %d: channel = %q", i, ch)
		}
	}
}

func TestTranslatorVolume(t *testing.T) {
	tr := NewTranslator(0)
	tests := []struct {
		ev   KeyEvent
		want Event
		ok   bool
	}{
		{KeyEvent{Code: KeyVolumeUp, Action: KeyDown}, VolumeUp, true},
		{KeyEvent{Code: KeyVolumeUp, Action: KeyUp}, "", false},
		{KeyEvent{Code: KeyVolumeDown, Action: KeyDown}, VolumeDown, true},
		{KeyEvent{Code: KeyVolumeDown, Action: KeyRepeat}, "", false},
		{KeyEvent{Code: 30, Action: KeyDown}, "", false},
	}
	for i, tt := range tests {
		ch, got, ok := tr.Translate(tt.ev)
		if got != tt.want || ok != tt.ok {
			t.Errorf("case %d: Translate() = %q, %v; want %q, %v", i, got, ok, tt.want, tt.ok)
		}
		if ok && ch != VolumeChannel {
			t.Errorf("case %d: channel = %q", i, ch)
		}
	}
}

func encodeEventLayout(l eventLayout, typ, code uint16, value int32, sec int64) []byte {
	b := make([]byte, l.size())
	if l.word == 4 {
		l.order.PutUint32(b[0:4], uint32(sec))
		l.order.PutUint32(b[4:8], 250000)
	} else {
		l.order.PutUint64(b[0:8], uint64(sec))
		l.order.PutUint64(b[8:16], 250000)
	}
	rest := b[2*l.word:]
	l.order.PutUint16(rest[0:2], typ)
	l.order.PutUint16(rest[2:4], code)
	l.order.PutUint32(rest[4:8], uint32(value))
	return b
}

func encodeEvent(typ, code uint16, value int32, sec int64) []byte {
	return encodeEventLayout(nativeLayout, typ, code, value, sec)
}

func TestReadEvents(t *testing.T) {
	layouts := []struct {
		name   string
		layout eventLayout
		size   int
	}{
		{"64-bit", eventLayout{word: 8, order: binary.LittleEndian}, 24},
		{"32-bit", eventLayout{word: 4, order: binary.LittleEndian}, 16},
		{"32-bit big endian", eventLayout{word: 4, order: binary.BigEndian}, 16},
		{"native", nativeLayout, nativeLayout.size()},
	}
	for _, tt := range layouts {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.layout
			if l.size() != tt.size {
				t.Fatalf("size() = %d, want %d", l.size(), tt.size)
			}
			var buf bytes.Buffer
			buf.Write(encodeEventLayout(l, 0, 0, 0, 10)) // EV_SYN
			buf.Write(encodeEventLayout(l, evKey, KeyPower, 1, 11))
			buf.Write(encodeEventLayout(l, 4, 4, 458, 11)) // EV_MSC
			buf.Write(encodeEventLayout(l, evKey, KeyPower, 0, 12))

			var got []KeyEvent
			if err := readEvents(&buf, l, func(ev KeyEvent) { got = append(got, ev) }); err != nil {
				t.Fatalf("readEvents() = %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d events, want 2", len(got))
			}
			if got[0].Code != KeyPower || got[0].Action != KeyDown {
				t.Errorf("first = %+v", got[0])
			}
			if want := time.Unix(11, 250000*int64(time.Microsecond)); !got[0].Time.Equal(want) {
				t.Errorf("time = %v, want %v", got[0].Time, want)
			}
			if got[1].Action != KeyUp {
				t.Errorf("second action = %d", got[1].Action)
			}
		})
	}
}

func TestReadEventsTruncated(t *testing.T) {
	r := bytes.NewReader(encodeEvent(evKey, KeyPower, 1, 1)[:10])
	if err := readEvents(r, nativeLayout, func(KeyEvent) {}); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("readEvents() = %v, want ErrUnexpectedEOF", err)
	}
}

func TestEvdevSourceFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event3")
	data := append(encodeEvent(evKey, KeyVolumeUp, 1, 1), encodeEvent(evKey, KeyVolumeUp, 0, 1)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	var n int
	err := NewEvdevSource([]string{path}).Run(context.Background(), func(KeyEvent) { n++ })
	if !apperrors.IsCode(err, apperrors.CodeSamplingFailed) {
		t.Errorf("Run() = %v, want SAMPLING_FAILED once the device closes", err)
	}
	if n != 2 {
		t.Errorf("emitted %d events, want 2", n)
	}
}

func TestEvdevSourceNoDevices(t *testing.T) {
	err := NewEvdevSource([]string{filepath.Join(t.TempDir(), "missing")}).Run(context.Background(), func(KeyEvent) {})
	if !apperrors.IsCode(err, apperrors.CodeHardwareUnavailable) {
		t.Errorf("Run() = %v, want HARDWARE_UNAVAILABLE", err)
	}
}

func TestParseGeteventLine(t *testing.T) {
	tests := []struct {
		line string
		want KeyEvent
		ok   bool
	}{
		{"/dev/input/event0: EV_KEY       KEY_POWER            DOWN", KeyEvent{Code: KeyPower, Action: KeyDown}, true},
		{"EV_KEY       KEY_VOLUMEDOWN       UP", KeyEvent{Code: KeyVolumeDown, Action: KeyUp}, true},
		{"/dev/input/event2: EV_KEY       KEY_VOLUMEUP         REPEAT", KeyEvent{Code: KeyVolumeUp, Action: KeyRepeat}, true},
		{"/dev/input/event0: EV_SYN       SYN_REPORT           00000000", KeyEvent{}, false},
		{"/dev/input/event1: EV_KEY       BTN_TOUCH            DOWN", KeyEvent{}, false},
		{"EV_KEY", KeyEvent{}, false},
		{"", KeyEvent{}, false},
	}
	for _, tt := range tests {
		got, ok := parseGeteventLine(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseGeteventLine(%q) = %+v, %v; want %+v, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

type streamShell struct {
	output string
	err    error
}

func (s *streamShell) Run(context.Context, ...string) (string, error) { return "", nil }

func (s *streamShell) Stream(_ context.Context, args ...string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	if strings.Join(args, " ") != "getevent -lq" {
		return nil, errors.New("unexpected command")
	}
	return io.NopCloser(strings.NewReader(s.output)), nil
}

func TestGeteventSource(t *testing.T) {
	sh := &streamShell{output: "/dev/input/event0: EV_KEY       KEY_POWER            DOWN\n" +
		"/dev/input/event0: EV_SYN       SYN_REPORT           00000000\n" +
		"/dev/input/event0: EV_KEY       KEY_POWER            UP\n"}
	src := NewGeteventSource(sh)

	var got []KeyEvent
	err := src.Run(context.Background(), func(ev KeyEvent) { got = append(got, ev) })
	if !apperrors.IsCode(err, apperrors.CodeSamplingFailed) {
		t.Errorf("Run() = %v, want SAMPLING_FAILED after stream end", err)
	}
	if len(got) != 2 || got[0].Action != KeyDown || got[1].Action != KeyUp {
		t.Errorf("events = %+v", got)
	}
	if got[0].Time.IsZero() {
		t.Error("event time not stamped")
	}
}

func TestGeteventSourceStreamError(t *testing.T) {
	want := apperrors.New(apperrors.CodeUnavailable, "device offline")
	err := NewGeteventSource(&streamShell{err: want}).Run(context.Background(), func(KeyEvent) {})
	if !errors.Is(err, want) {
		t.Errorf("Run() = %v, want %v", err, want)
	}
}

// chanSource replays events from a channel until cancelled.
type chanSource struct {
	events chan KeyEvent
	runs   atomic.Int32
	active atomic.Int32
	fail   error
}

func newChanSource() *chanSource { return &chanSource{events: make(chan KeyEvent)} }

func (s *chanSource) Run(ctx context.Context, emit func(KeyEvent)) error {
	s.runs.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)
	if s.fail != nil {
		return s.fail
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			emit(ev)
		}
	}
}

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case e := <-sub.Events():
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubFanOut(t *testing.T) {
	src := newChanSource()
	hub := NewHub(src)
	ctx := context.Background()

	power1, err := hub.Subscribe(ctx, PowerChannel)
	if err != nil {
		t.Fatal(err)
	}
	power2, _ := hub.Subscribe(ctx, PowerChannel)
	volume, _ := hub.Subscribe(ctx, VolumeChannel)
	defer power1.Close()
	defer power2.Close()
	defer volume.Close()

	if hub.Subscribers() != 3 {
		t.Errorf("Subscribers() = %d, want 3", hub.Subscribers())
	}

	src.events <- KeyEvent{Code: KeyPower, Action: KeyDown, Time: time.Now()}
	src.events <- KeyEvent{Code: KeyVolumeDown, Action: KeyDown, Time: time.Now()}

	if e := recv(t, power1); e != ScreenOff {
		t.Errorf("power1 = %q", e)
	}
	if e := recv(t, power2); e != ScreenOff {
		t.Errorf("power2 = %q", e)
	}
	if e := recv(t, volume); e != VolumeDown {
		t.Errorf("volume = %q", e)
	}
	if src.runs.Load() != 1 {
		t.Errorf("source started %d times, want 1", src.runs.Load())
	}
}

func TestHubStopsSourceWithLastSubscriber(t *testing.T) {
	src := newChanSource()
	hub := NewHub(src)

	a, _ := hub.Subscribe(context.Background(), PowerChannel)
	b, _ := hub.Subscribe(context.Background(), VolumeChannel)
	waitFor(t, func() bool { return src.active.Load() == 1 })

	a.Close()
	a.Close()
	if _, ok := <-a.Events(); ok {
		t.Error("closed subscription still delivering")
	}
	if src.active.Load() != 1 {
		t.Error("source stopped while a subscriber remains")
	}

	b.Close()
	waitFor(t, func() bool { return src.active.Load() == 0 })

	c, _ := hub.Subscribe(context.Background(), PowerChannel)
	defer c.Close()
	waitFor(t, func() bool { return src.runs.Load() == 2 })
}

func TestHubDropsWhenFull(t *testing.T) {
	src := newChanSource()
	hub := NewHub(src, WithBufferSize(1))
	sub, _ := hub.Subscribe(context.Background(), VolumeChannel)
	defer sub.Close()

	for i := 0; i < 3; i++ {
		src.events <- KeyEvent{Code: KeyVolumeUp, Action: KeyDown}
	}
	// An untranslated key flushes the third event through the source loop.
	src.events <- KeyEvent{Code: 30, Action: KeyDown}
	if e := recv(t, sub); e != VolumeUp {
		t.Errorf("event = %q", e)
	}
	select {
	case e := <-sub.Events():
		t.Errorf("unexpected buffered event %q", e)
	default:
	}
}

func TestHubSourceFailureClosesSubscribers(t *testing.T) {
	src := newChanSource()
	src.fail = apperrors.New(apperrors.CodeHardwareUnavailable, "no readable input devices")
	hub := NewHub(src)

	sub, err := hub.Subscribe(context.Background(), PowerChannel)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("unexpected event")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after source failure")
	}
	if !apperrors.IsCode(sub.Err(), apperrors.CodeHardwareUnavailable) {
		t.Errorf("Err() = %v", sub.Err())
	}
	if hub.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d, want 0", hub.Subscribers())
	}
}

func TestHubRejectsUnknownChannel(t *testing.T) {
	_, err := NewHub(newChanSource()).Subscribe(context.Background(), "audio_amplitude")
	if !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Errorf("Subscribe() = %v, want INVALID_ARGUMENT", err)
	}
}
