package reader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"nfcbridge/uid"
)

const (
	stx = 0x02
	etx = 0x03

	// maxWiegandBody is ten digits plus a two digit checksum.
	maxWiegandBody = 12
)

// Wiegand reads Wiegand-to-serial bridges that frame the card number as
// ASCII hex between STX and ETX, optionally followed by a two digit checksum.
type Wiegand struct {
	port serial.Port
}

func openWiegand(device string, baud int) (*Wiegand, error) {
	if baud == 0 {
		baud = 9600
	}

	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}

	_ = p.SetReadTimeout(50 * time.Millisecond)

	w := &Wiegand{port: p}
	w.flush()
	return w, nil
}

// ReadTag implements frameReader.
func (w *Wiegand) ReadTag(ctx context.Context) (uid.Raw, error) {
	if w.port == nil {
		return uid.Raw{}, errors.New("port not initialized")
	}
	if err := ctx.Err(); err != nil {
		return uid.Raw{}, err
	}

	first := make([]byte, 1)
	n, err := w.port.Read(first)
	if err != nil {
		return uid.Raw{}, fmt.Errorf("read STX: %w", err)
	}
	if n == 0 {
		return uid.Raw{}, nil
	}
	if first[0] != stx {
		w.flush()
		return uid.Raw{}, nil
	}

	var body strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := w.port.Read(buf)
		if err != nil {
			return uid.Raw{}, fmt.Errorf("read body: %w", err)
		}
		if n == 0 {
			w.flush()
			return uid.Raw{}, nil
		}
		if buf[0] == etx {
			break
		}
		if body.Len() == maxWiegandBody {
			w.flush()
			return uid.Raw{}, nil
		}
		body.WriteByte(buf[0])
	}

	id, ok := parseWiegandBody(body.String())
	if !ok {
		return uid.Raw{}, nil
	}
	return uid.FromText(id), nil
}

// parseWiegandBody validates the optional checksum and returns the ten
// digit card number. Bodies shorter than ten digits are left padded.
func parseWiegandBody(body string) (string, bool) {
	if body == "" {
		return "", false
	}
	id := body
	var sum string
	if len(body) == 12 {
		id, sum = body[:10], body[10:]
	}
	for len(id) < 10 {
		id = "0" + id
	}
	if len(id) != 10 {
		return "", false
	}

	if sum != "" {
		var checksum byte
		for i := 0; i < 10; i += 2 {
			b, err := hexByte(id[i], id[i+1])
			if err != nil {
				return "", false
			}
			checksum ^= b
		}
		want, err := hexByte(sum[0], sum[1])
		if err != nil || want != checksum {
			return "", false
		}
	}
	return id, true
}

// Close implements frameReader.
func (w *Wiegand) Close() error {
	if w.port == nil {
		return nil
	}
	return w.port.Close()
}

func (w *Wiegand) flush() {
	if w.port == nil {
		return
	}
	_ = w.port.SetReadTimeout(10 * time.Millisecond)
	defer func() {
		_ = w.port.SetReadTimeout(50 * time.Millisecond)
	}()

	tmp := make([]byte, 64)
	for {
		n, err := w.port.Read(tmp)
		if err != nil || n == 0 {
			return
		}
	}
}

func hexByte(hi, lo byte) (byte, error) {
	h, err := hexCharToNibble(hi)
	if err != nil {
		return 0, err
	}
	l, err := hexCharToNibble(lo)
	if err != nil {
		return 0, err
	}
	return byte(h<<4 | l), nil
}

func hexCharToNibble(c byte) (int, error) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, nil
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, nil
	default:
		return 0, fmt.Errorf("not a hex char: %q", c)
	}
}
