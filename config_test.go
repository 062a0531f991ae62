package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nfcbridge.cfg")

	cfg, err := LoadConfig(missing, false)
	require.NoError(t, err)
	require.Equal(t, defaultConfig(), cfg)
	require.NoError(t, cfg.Validate())

	_, err = LoadConfig(missing, true)
	require.ErrorContains(t, err, "read config")
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeFile(t, "nfcbridge.cfg", `
bind: 0.0.0.0
event_port: 9000
debounce_ms: 1500
log:
  level: debug
  format: json
reader:
  type: pipe
  device: /tmp/nfc
  name: PN532
mqtt:
  host: broker.local
  topic_prefix: lab
indicator:
  green_pin: 17
  flash_ms: 100
`)
	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Bind)
	require.Equal(t, 9000, cfg.EventPort)
	require.Equal(t, 8766, cfg.StatusPort, "unset fields keep defaults")
	require.Equal(t, 1500, cfg.DebounceMS)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, "pipe", cfg.Reader.Type)
	require.Equal(t, "PN532", cfg.Reader.Name)
	require.Equal(t, "broker.local", cfg.MQTT.Host)
	require.NotNil(t, cfg.Indicator.GreenPin)
	require.Equal(t, uint8(17), *cfg.Indicator.GreenPin)
	require.Nil(t, cfg.Indicator.RedPin)
	require.Equal(t, "0.0.0.0:9000", cfg.eventAddr())
}

func TestLoadConfig_TOMLAndJSON(t *testing.T) {
	path := writeFile(t, "bridge.toml", `
status_port = 9001
[reader]
type = "keyboard"
device = "/dev/input/event3"
format = "10d"
`)
	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	require.Equal(t, 9001, cfg.StatusPort)
	require.Equal(t, "keyboard", cfg.Reader.Type)
	require.Equal(t, "10d", cfg.Reader.Format)

	path = writeFile(t, "bridge.json", `{"event_port": 7000, "reader": {"type": "none"}}`)
	cfg, err = LoadConfig(path, true)
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.EventPort)
	require.Equal(t, "none", cfg.Reader.Type)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "bridge.ini", "x=1"), true)
	require.ErrorContains(t, err, "unsupported config extension: .ini")

	_, err = LoadConfig(writeFile(t, "bad.yaml", "event_port: [1"), true)
	require.ErrorContains(t, err, "decode config")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"same ports", func(c *Config) { c.StatusPort = c.EventPort }, "must differ"},
		{"port zero", func(c *Config) { c.EventPort = 0 }, "event_port 0 out of range"},
		{"port too big", func(c *Config) { c.StatusPort = 70000 }, "status_port 70000 out of range"},
		{"debounce", func(c *Config) { c.DebounceMS = 0 }, "debounce_ms"},
		{"queue", func(c *Config) { c.SubscriberQueue = -1 }, "subscriber_queue"},
		{"write timeout", func(c *Config) { c.WriteTimeoutMS = 0 }, "write_timeout_ms"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestRootCmd_FlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "nfcbridge.yaml", "event_port: 9000\nreader:\n  type: serial\n  device: /dev/ttyACM0\n")

	var got Config
	cmd := newRootCmd(func(_ context.Context, cfg Config) error {
		got = cfg
		return nil
	})
	cmd.SetArgs([]string{"--cfg", path, "--status-port", "9100", "--reader", "pipe", "--device", "/tmp/p", "--log-level", "debug"})
	require.NoError(t, cmd.Execute())

	require.Equal(t, 9000, got.EventPort)
	require.Equal(t, 9100, got.StatusPort)
	require.Equal(t, "pipe", got.Reader.Type)
	require.Equal(t, "/tmp/p", got.Reader.Device)
	require.Equal(t, "debug", got.Log.Level)
}

func TestRootCmd_Errors(t *testing.T) {
	called := false
	run := func(context.Context, Config) error { called = true; return nil }

	cmd := newRootCmd(run)
	cmd.SetArgs([]string{"--cfg", filepath.Join(t.TempDir(), "absent.cfg")})
	require.ErrorContains(t, cmd.Execute(), "read config")

	cmd = newRootCmd(run)
	cmd.SetArgs([]string{"--cfg", writeFile(t, defaultConfigFile, ""), "--event-port", "8766"})
	require.ErrorContains(t, cmd.Execute(), "must differ")
	require.False(t, called)
}

func TestVersionCmd(t *testing.T) {
	myBuild = "test-build"
	defer func() { myBuild = "" }()

	var out bytes.Buffer
	cmd := newRootCmd(func(context.Context, Config) error { return nil })
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "nfcbridge build test-build\n", out.String())
}
