package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"nfcbridge/uid"
)

// Serial reads RFID modules that use a fixed 9 byte frame.
// Protocol: [0x02][0x09][data x5][checksum][0x03]
type Serial struct {
	port   io.ReadCloser
	device string
}

var (
	serialPreamble   = []byte{0x02, 0x09}
	serialTerminator = []byte{0x03}
)

func openSerial(device string, baud int) (*Serial, error) {
	if baud == 0 {
		baud = 115200
	}
	c := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: time.Second,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	return &Serial{port: port, device: device}, nil
}

// ReadTag implements frameReader.
func (s *Serial) ReadTag(ctx context.Context) (uid.Raw, error) {
	if err := ctx.Err(); err != nil {
		return uid.Raw{}, err
	}

	buff := make([]byte, 9)
	n, err := s.port.Read(buff)
	if err != nil {
		// A read timeout surfaces as EOF on the tty.
		if errors.Is(err, io.EOF) {
			return uid.Raw{}, nil
		}
		return uid.Raw{}, fmt.Errorf("read serial %s: %w", s.device, err)
	}
	return parseSerialFrame(buff[:n]), nil
}

// parseSerialFrame returns the 32 bit tag bytes of a valid frame, or a zero
// Raw for partial frames and checksum mismatches.
func parseSerialFrame(buff []byte) uid.Raw {
	if len(buff) != 9 {
		return uid.Raw{}
	}
	if !bytes.Equal(buff[0:2], serialPreamble) || !bytes.Equal(buff[8:9], serialTerminator) {
		return uid.Raw{}
	}

	data := buff[1:7]
	xor := data[0]
	for i := 1; i < len(data); i++ {
		xor ^= data[i]
	}
	if xor != buff[7] {
		return uid.Raw{}
	}
	return uid.FromBytes(data[2:6])
}

// Close implements frameReader.
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}
