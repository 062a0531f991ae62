package reader

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"nfcbridge/uid"
)

func TestNew(t *testing.T) {
	src, err := New(Config{Type: "none"})
	require.NoError(t, err)
	require.Nil(t, src)

	_, err = New(Config{Type: "nfc-magic", Device: "/dev/null"})
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = New(Config{Type: "serial"})
	require.Error(t, err)

	_, err = New(Config{Type: "keyboard", Device: "/dev/input/event0", Format: "xx"})
	require.Error(t, err)

	src, err = New(Config{Type: "serial", Device: "/dev/ttyUSB0"})
	require.NoError(t, err)
	require.IsType(t, &Poller{}, src)
	require.Equal(t, "serial:/dev/ttyUSB0", src.(*Poller).name)
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "attached", Attached.String())
	require.Equal(t, "card-removed", CardRemoved.String())
	require.Equal(t, "error", Fault.String())
	require.Equal(t, "kind(42)", Kind(42).String())
}

func TestParseCommand(t *testing.T) {
	ev, err := parseCommand([]string{"attach", "ACR122U", "PICC"}, "pipe")
	require.NoError(t, err)
	require.Equal(t, Event{Kind: Attached, Reader: "ACR122U PICC"}, ev)

	ev, err = parseCommand([]string{"ATTACH"}, "pipe")
	require.NoError(t, err)
	require.Equal(t, "pipe", ev.Reader)

	ev, err = parseCommand([]string{"tag", "04:a3:2b:91"}, "PN532")
	require.NoError(t, err)
	require.Equal(t, CardPresent, ev.Kind)
	require.Equal(t, uid.FromText("04:a3:2b:91"), ev.UID)

	ev, err = parseCommand([]string{"bytes", "0x04", "163", "0x2b", "145"}, "PN532")
	require.NoError(t, err)
	require.Equal(t, uid.FromValues(4, 163, 43, 145), ev.UID)

	ev, err = parseCommand([]string{"remove"}, "PN532")
	require.NoError(t, err)
	require.Equal(t, CardRemoved, ev.Kind)
	require.True(t, ev.UID.IsZero())

	ev, err = parseCommand([]string{"error", "usb", "reset"}, "PN532")
	require.NoError(t, err)
	require.Equal(t, Fault, ev.Kind)
	require.EqualError(t, ev.Err, "usb reset")

	for _, bad := range [][]string{{}, {"tag"}, {"bytes"}, {"bytes", "zz"}, {"rotary", "1"}} {
		_, err := parseCommand(bad, "pipe")
		require.Error(t, err, "%v", bad)
	}
}

func TestParseSerialFrame(t *testing.T) {
	data := []byte{0x09, 0x00, 0x04, 0xA3, 0x2B, 0x91}
	xor := data[0]
	for _, b := range data[1:] {
		xor ^= b
	}
	frame := append([]byte{0x02}, data...)
	frame = append(frame, xor, 0x03)

	got := parseSerialFrame(frame)
	require.Equal(t, uid.FromBytes([]byte{0x04, 0xA3, 0x2B, 0x91}), got)

	bad := append([]byte(nil), frame...)
	bad[7] ^= 0xff
	require.True(t, parseSerialFrame(bad).IsZero(), "checksum")
	require.True(t, parseSerialFrame(frame[:5]).IsZero(), "partial")
	bad = append([]byte(nil), frame...)
	bad[8] = 0x00
	require.True(t, parseSerialFrame(bad).IsZero(), "terminator")
}

func TestParseWiegandBody(t *testing.T) {
	id, ok := parseWiegandBody("1A2B3C")
	require.True(t, ok)
	require.Equal(t, "00001A2B3C", id)

	// 0x12 ^ 0x34 ^ 0x56 ^ 0x78 ^ 0x9A = 0x92
	id, ok = parseWiegandBody("123456789A92")
	require.True(t, ok)
	require.Equal(t, "123456789A", id)

	_, ok = parseWiegandBody("123456789A00")
	require.False(t, ok)
	_, ok = parseWiegandBody("")
	require.False(t, ok)
	_, ok = parseWiegandBody("12345678901")
	require.False(t, ok)
}

// noisyPort serves its bytes and then reports read timeouts.
type noisyPort struct {
	serial.Port
	data []byte
}

func (p *noisyPort) Read(b []byte) (int, error) {
	n := copy(b, p.data)
	p.data = p.data[n:]
	return n, nil
}

func (p *noisyPort) SetReadTimeout(time.Duration) error { return nil }

func TestWiegand_ReadTag(t *testing.T) {
	port := &noisyPort{data: append([]byte{stx}, "123456789A92\x03"...)}
	w := &Wiegand{port: port}
	raw, err := w.ReadTag(context.Background())
	require.NoError(t, err)
	require.Equal(t, uid.FromText("123456789A"), raw)

	// A frame without ETX is abandoned once it outgrows any valid body.
	noise := append([]byte{stx}, strings.Repeat("7", 100000)...)
	port = &noisyPort{data: append(noise, stx)}
	w = &Wiegand{port: port}
	raw, err = w.ReadTag(context.Background())
	require.NoError(t, err)
	require.True(t, raw.IsZero())
	require.Empty(t, port.data, "rest of the noise is flushed")
}

func TestKeyFormat(t *testing.T) {
	f, err := parseKeyFormat("")
	require.NoError(t, err)
	require.Equal(t, keyFormat{digits: 10, hex: true, name: "10h"}, f)

	f, err = parseKeyFormat("10D")
	require.NoError(t, err)
	require.False(t, f.hex)

	raw, ok := f.decode("0010659985")
	require.True(t, ok)
	got, err := uid.Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, "00A2A891", got)

	_, ok = f.decode("123")
	require.False(t, ok)

	f, _ = parseKeyFormat("8h")
	raw, ok = f.decode("04a32b91")
	require.True(t, ok)
	require.Equal(t, uid.FromText("04a32b91"), raw)
}

type fakeFrames struct {
	mu     sync.Mutex
	tags   []uid.Raw
	end    error
	closed bool
}

func (f *fakeFrames) ReadTag(ctx context.Context) (uid.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tags) > 0 {
		t := f.tags[0]
		f.tags = f.tags[1:]
		return t, nil
	}
	if f.end != nil {
		return uid.Raw{}, f.end
	}
	f.mu.Unlock()
	<-ctx.Done()
	f.mu.Lock()
	return uid.Raw{}, ctx.Err()
}

func (f *fakeFrames) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reader event")
		return Event{}
	}
}

func TestPoller_AttachReadFaultRecover(t *testing.T) {
	var mu sync.Mutex
	opens := 0
	first := &fakeFrames{tags: []uid.Raw{{}, uid.FromText("AA")}, end: errors.New("usb unplugged")}
	second := &fakeFrames{tags: []uid.Raw{uid.FromText("BB")}}
	p := newPoller("test", time.Millisecond, func() (frameReader, error) {
		mu.Lock()
		defer mu.Unlock()
		opens++
		switch opens {
		case 1:
			return first, nil
		case 2:
			return nil, errors.New("busy")
		case 3:
			return nil, errors.New("still busy")
		default:
			return second, nil
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Event)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, out) }()

	require.Equal(t, Attached, next(t, out).Kind)
	ev := next(t, out)
	require.Equal(t, CardPresent, ev.Kind)
	require.Equal(t, uid.FromText("AA"), ev.UID)
	ev = next(t, out)
	require.Equal(t, Fault, ev.Kind)
	require.EqualError(t, ev.Err, "usb unplugged")
	// Two failed opens in the same outage are not reported again.
	require.Equal(t, Attached, next(t, out).Kind)
	require.Equal(t, uid.FromText("BB"), next(t, out).UID)

	cancel()
	require.NoError(t, <-done)
	require.True(t, first.closed)
	second.mu.Lock()
	require.True(t, second.closed)
	second.mu.Unlock()
}

func TestPoller_MissingDeviceIsDetach(t *testing.T) {
	p := newPoller("test", time.Hour, func() (frameReader, error) {
		return nil, &fs.PathError{Op: "open", Path: "/dev/ttyUSB9", Err: fs.ErrNotExist}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Event, 1)
	go p.Run(ctx, out)
	require.Equal(t, Detached, next(t, out).Kind)
}

func TestManual(t *testing.T) {
	m := NewManual()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Event, 8)
	go m.Run(ctx, out)

	m.Attach("PN532")
	m.Present(uid.FromBytes([]byte{1, 2}))
	m.Remove(uid.Raw{})
	m.Fail(errors.New("boom"))
	m.Detach()

	kinds := []Kind{Attached, CardPresent, CardRemoved, Fault, Detached}
	for _, k := range kinds {
		require.Equal(t, k, next(t, out).Kind)
	}

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	m.Attach("ignored") // does not block after Close
}

func TestPipe_Commands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reader")
	p, err := NewPipe(path, "pipe", time.Millisecond)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Event, 8)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, out) }()

	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = w.WriteString("# comment\n\nattach PN532\nbogus\ntag 04a32b91\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	ev := next(t, out)
	require.Equal(t, Event{Kind: Attached, Reader: "PN532"}, ev)
	ev = next(t, out)
	require.Equal(t, CardPresent, ev.Kind)
	require.Equal(t, "PN532", ev.Reader)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipe did not stop")
	}
}

func TestPipe_SkipsOverLongLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reader")
	p, err := NewPipe(path, "pipe", time.Millisecond)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Event, 8)
	go p.Run(ctx, out)

	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer w.Close()
	_, err = w.WriteString("tag " + strings.Repeat("A", 70000) + "\nattach X\n")
	require.NoError(t, err)

	require.Equal(t, Event{Kind: Attached, Reader: "X"}, next(t, out))
}

func TestPipe_ReopensAfterFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reader")
	p, err := NewPipe(path, "pipe", time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Event, 8)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, out) }()

	ev := next(t, out)
	require.Equal(t, Fault, ev.Kind)
	require.ErrorIs(t, ev.Err, fs.ErrNotExist)

	require.NoError(t, syscall.Mkfifo(path, 0o666))
	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer w.Close()
	_, err = w.WriteString("attach PN532\n")
	require.NoError(t, err)

	// Retries during the outage are not reported again.
	require.Equal(t, Event{Kind: Attached, Reader: "PN532"}, next(t, out))

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, p.Close())
}
