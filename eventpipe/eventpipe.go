// Package eventpipe reads newline separated commands from a named pipe.
package eventpipe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
)

// MaxLine bounds a command line. Longer lines are skipped.
const MaxLine = 4096

// ErrLineTooLong marks a line that exceeded MaxLine and was dropped.
var ErrLineTooLong = errors.New("line too long")

// LineHandler is called with the whitespace separated fields of each
// non-empty, non-comment line.
type LineHandler func(fields []string)

// EventPipe listens for commands on a named pipe.
type EventPipe struct {
	path string
}

// New creates the named pipe at path, replacing any existing file.
func New(path string) (*EventPipe, error) {
	if path == "" {
		return nil, errors.New("event pipe path is empty")
	}

	// Remove existing pipe if it exists
	os.Remove(path)

	if err := syscall.Mkfifo(path, 0666); err != nil {
		return nil, fmt.Errorf("create named pipe %s: %w", path, err)
	}
	return &EventPipe{path: path}, nil
}

// Path returns the filesystem path of the pipe.
func (ep *EventPipe) Path() string { return ep.path }

// Listen reads lines until ctx is done. The pipe is opened read-write so
// that writers may come and go without the reader seeing EOF. Over-long
// lines are skipped.
func (ep *EventPipe) Listen(ctx context.Context, handle LineHandler) error {
	file, err := os.OpenFile(ep.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open named pipe %s: %w", ep.path, err)
	}

	stop := context.AfterFunc(ctx, func() { file.Close() })
	defer stop()
	defer file.Close()

	r := bufio.NewReaderSize(file, MaxLine)
	for {
		text, err := readLine(r)
		if errors.Is(err, ErrLineTooLong) {
			log.Warn().Str("component", "eventpipe").Str("path", ep.path).Int("max", MaxLine).Msg("skipping over-long line")
			continue
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read named pipe %s: %w", ep.path, err)
		}
		text = strings.TrimSpace(text)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		handle(strings.Fields(text))
	}
}

// readLine returns the next line. A line that does not fit the reader's
// buffer is consumed up to its newline and dropped.
func readLine(r *bufio.Reader) (string, error) {
	b, isPrefix, err := r.ReadLine()
	if err != nil {
		return "", err
	}
	if !isPrefix {
		return string(b), nil
	}
	for isPrefix {
		if _, isPrefix, err = r.ReadLine(); err != nil {
			return "", err
		}
	}
	return "", ErrLineTooLong
}

// Close removes the pipe from the filesystem.
func (ep *EventPipe) Close() error {
	return os.Remove(ep.path)
}
