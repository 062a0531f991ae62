package reader

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/kenshaw/evdev"
	"github.com/rs/zerolog/log"

	"nfcbridge/uid"
)

// keyFormat describes how a keyboard-wedge reader types the card number.
type keyFormat struct {
	digits int  // expected number of digits (0 = any)
	hex    bool // true for hex input, false for decimal
	name   string
}

// parseKeyFormat accepts "10h" (10 hex digits), "10d" (10 decimal), "8h",
// "8d", or a bare number meaning hex. Empty defaults to "10h".
func parseKeyFormat(format string) (keyFormat, error) {
	if format == "" {
		format = "10h"
	}
	format = strings.ToLower(format)

	f := keyFormat{hex: true, name: format}
	digits := format
	switch {
	case strings.HasSuffix(format, "h"):
		digits = strings.TrimSuffix(format, "h")
	case strings.HasSuffix(format, "d"):
		f.hex = false
		digits = strings.TrimSuffix(format, "d")
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return keyFormat{}, fmt.Errorf("keyboard format %q: want <digits>h or <digits>d", format)
	}
	f.digits = n
	return f, nil
}

// Keyboard reads USB keyboard-style RFID readers that type the card
// number followed by Enter.
type Keyboard struct {
	device *evdev.Evdev
	format keyFormat
	events <-chan *evdev.EventEnvelope
	cancel context.CancelFunc
}

func openKeyboard(device string, format keyFormat) (*Keyboard, error) {
	dev, err := evdev.OpenFile(device)
	if err != nil {
		return nil, fmt.Errorf("open evdev %s: %w", device, err)
	}

	log.Info().
		Str("component", "reader").
		Str("device", dev.Name()).
		Str("vendor", fmt.Sprintf("0x%04x", dev.ID().Vendor)).
		Str("product", fmt.Sprintf("0x%04x", dev.ID().Product)).
		Str("format", format.name).
		Msg("opened keyboard device")

	ctx, cancel := context.WithCancel(context.Background())
	return &Keyboard{
		device: dev,
		format: format,
		events: dev.Poll(ctx),
		cancel: cancel,
	}, nil
}

// ReadTag implements frameReader. It collects digits until Enter.
func (k *Keyboard) ReadTag(ctx context.Context) (uid.Raw, error) {
	var strbuf string
	for {
		select {
		case <-ctx.Done():
			return uid.Raw{}, ctx.Err()
		case event := <-k.events:
			if event == nil {
				return uid.Raw{}, fmt.Errorf("keyboard device closed")
			}

			switch event.Type.(type) {
			case evdev.KeyType:
				if event.Value != 1 {
					continue
				}
				if event.Type == evdev.KeyEnter {
					if strbuf == "" {
						continue
					}
					raw, ok := k.format.decode(strbuf)
					strbuf = ""
					if ok {
						return raw, nil
					}
					continue
				}
				strbuf += evdev.KeyType(event.Code).String()
			}
		}
	}
}

// decode turns a typed line into an identifier. Hex lines are passed
// through as text; decimal lines become the 32 bit big-endian card number.
func (f keyFormat) decode(line string) (uid.Raw, bool) {
	if f.digits > 0 && len(line) != f.digits {
		log.Warn().Str("component", "reader").Int("want", f.digits).Str("line", line).Msg("bad badge length")
		return uid.Raw{}, false
	}
	if f.hex {
		return uid.FromText(line), true
	}
	number, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		log.Warn().Str("component", "reader").Str("line", line).Err(err).Msg("bad decimal badge")
		return uid.Raw{}, false
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(number&0xffffffff))
	return uid.FromBytes(buf[:]), true
}

// Close implements frameReader.
func (k *Keyboard) Close() error {
	if k.cancel != nil {
		k.cancel()
	}
	if k.device == nil {
		return nil
	}
	return k.device.Close()
}
