package mqtt

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// pahoLogger routes paho's package loggers into zerolog.
type pahoLogger struct {
	log   zerolog.Logger
	level zerolog.Level
}

func (l pahoLogger) Println(v ...interface{}) {
	l.emit(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	l.emit(fmt.Sprintf(format, v...))
}

func (l pahoLogger) emit(msg string) {
	// FatalLevel would exit the process; critical paho messages are logged
	// as errors with a marker instead.
	if l.level == zerolog.FatalLevel {
		l.log.Error().Bool("critical", true).Str("source", "paho").Msg(msg)
		return
	}
	l.log.WithLevel(l.level).Str("source", "paho").Msg(msg)
}
