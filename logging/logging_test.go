package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(Config{Level: "warn", Format: "json"}, &buf), "bridge")
	log.Info().Msg("hidden")
	log.Warn().Str("uid", "04A32B91").Msg("shown")

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	require.Equal(t, "warn", m["level"])
	require.Equal(t, "bridge", m["component"])
	require.Equal(t, "04A32B91", m["uid"])
	require.Equal(t, "shown", m["message"])
	require.Contains(t, m, "time")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug"}, &buf)
	log.Debug().Msg("debounced repeat read")
	require.Contains(t, buf.String(), "debounced repeat read")
	require.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
