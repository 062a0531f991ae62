package reader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"nfcbridge/eventpipe"
	"nfcbridge/uid"
)

// Pipe is a simulated reader driven by text commands on a named pipe:
//
//	attach [name]        - reader attached (defaults to the configured name)
//	detach               - reader detached
//	tag <text>           - card present, textual identifier (alias: rfid)
//	bytes <v> <v> ...    - card present, numeric array (0x.. allowed)
//	remove [text]        - card removed
//	error <message>      - driver fault
type Pipe struct {
	pipe  *eventpipe.EventPipe
	name  string
	retry time.Duration
}

// NewPipe creates the named pipe at path. After a read failure the pipe is
// reopened every retry.
func NewPipe(path, name string, retry time.Duration) (*Pipe, error) {
	ep, err := eventpipe.New(path)
	if err != nil {
		return nil, err
	}
	return &Pipe{pipe: ep, name: name, retry: retry}, nil
}

// Run implements Source.Run. A listen failure is reported as one Fault per
// outage and the pipe is reopened until ctx is done.
func (p *Pipe) Run(ctx context.Context, out chan<- Event) error {
	log.Info().Str("component", "reader").Str("path", p.pipe.Path()).Msg("event pipe listening")
	faulted := false
	for {
		err := p.pipe.Listen(ctx, func(fields []string) {
			faulted = false
			ev, err := parseCommand(fields, p.name)
			if err != nil {
				log.Warn().Str("component", "reader").Err(err).Msg("event pipe parse error")
				return
			}
			// The name given on attach sticks for later commands.
			if ev.Kind == Attached {
				p.name = ev.Reader
			}
			send(ctx, out, ev)
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !faulted {
			log.Error().Str("component", "reader").Err(err).Msg("event pipe failed")
			if !send(ctx, out, Event{Kind: Fault, Reader: p.name, Err: err}) {
				return nil
			}
			faulted = true
		}
		if !wait(ctx, p.retry) {
			return nil
		}
	}
}

// Close implements Source.Close.
func (p *Pipe) Close() error {
	return p.pipe.Close()
}

func parseCommand(parts []string, name string) (Event, error) {
	if len(parts) == 0 {
		return Event{}, fmt.Errorf("empty command")
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "attach":
		if len(args) > 0 {
			name = strings.Join(args, " ")
		}
		return Event{Kind: Attached, Reader: name}, nil

	case "detach":
		return Event{Kind: Detached, Reader: name}, nil

	case "tag", "rfid":
		if len(args) < 1 {
			return Event{}, fmt.Errorf("%s requires a tag id", cmd)
		}
		return Event{Kind: CardPresent, Reader: name, UID: uid.FromText(strings.Join(args, " "))}, nil

	case "bytes":
		if len(args) < 1 {
			return Event{}, fmt.Errorf("bytes requires at least one value")
		}
		vals := make([]int, 0, len(args))
		for _, a := range args {
			v, err := strconv.ParseInt(a, 0, 64)
			if err != nil {
				return Event{}, fmt.Errorf("invalid byte value: %s", a)
			}
			vals = append(vals, int(v))
		}
		return Event{Kind: CardPresent, Reader: name, UID: uid.FromValues(vals...)}, nil

	case "remove":
		ev := Event{Kind: CardRemoved, Reader: name}
		if len(args) > 0 {
			ev.UID = uid.FromText(strings.Join(args, " "))
		}
		return ev, nil

	case "error":
		msg := "reader error"
		if len(args) > 0 {
			msg = strings.Join(args, " ")
		}
		return Event{Kind: Fault, Reader: name, Err: fmt.Errorf("%s", msg)}, nil

	default:
		return Event{}, fmt.Errorf("unknown command: %s", cmd)
	}
}
