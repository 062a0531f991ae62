// Package mqtt mirrors bridge events to an MQTT broker.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// Client wraps the MQTT client with application-specific functionality.
type Client struct {
	client   paho.Client
	clientID string
	prefix   string
	enabled  bool
	log      zerolog.Logger
}

// Config holds MQTT connection settings.
type Config struct {
	Host        string `yaml:"host" toml:"host" json:"host"`
	Port        int    `yaml:"port" toml:"port" json:"port"`
	CACert      string `yaml:"ca_cert" toml:"ca_cert" json:"ca_cert"`
	ClientCert  string `yaml:"client_cert" toml:"client_cert" json:"client_cert"`
	ClientKey   string `yaml:"client_key" toml:"client_key" json:"client_key"`
	ClientID    string `yaml:"client_id" toml:"client_id" json:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" toml:"topic_prefix" json:"topic_prefix"`
}

// New creates a new MQTT client. Returns a disabled no-op client if host is empty.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	c := &Client{
		clientID: cfg.ClientID,
		prefix:   cfg.TopicPrefix,
		log:      log,
	}
	if c.clientID == "" {
		host, _ := os.Hostname()
		c.clientID = "nfcbridge-" + host
	}
	if c.prefix == "" {
		c.prefix = "nfcbridge"
	}

	// If no host configured, return disabled client
	if cfg.Host == "" {
		log.Info().Msg("MQTT disabled (no host configured)")
		return c, nil
	}

	c.enabled = true

	var broker string
	var tlsConfig *tls.Config

	hasTLS := cfg.CACert != "" || cfg.ClientCert != ""

	if hasTLS {
		if cfg.Port == 0 {
			cfg.Port = 8883
		}
		broker = fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.Port)

		var err error
		tlsConfig, err = buildTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build TLS config: %w", err)
		}
	} else {
		if cfg.Port == 0 {
			cfg.Port = 1883
		}
		broker = fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
		log.Info().Str("broker", broker).Msg("MQTT using non-TLS connection")
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60*time.Second).
		SetWill(c.Topic("status"), statusOffline, 1, true).
		SetConnectionLostHandler(c.handleConnectionLost).
		SetOnConnectHandler(c.handleConnect)

	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(opts)

	paho.ERROR = pahoLogger{log: log, level: zerolog.ErrorLevel}
	paho.CRITICAL = pahoLogger{log: log, level: zerolog.FatalLevel}
	paho.WARN = pahoLogger{log: log, level: zerolog.WarnLevel}

	return c, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = caPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Topic returns the full topic for a subtopic of this bridge.
func (c *Client) Topic(subtopic string) string {
	return c.prefix + "/" + c.clientID + "/" + subtopic
}

// Connect starts connecting to the broker. With SetConnectRetry the
// client keeps retrying in the background, so this returns promptly.
func (c *Client) Connect() error {
	if !c.enabled {
		return nil
	}

	if token := c.client.Connect(); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("connect: %w", token.Error())
	}
	return nil
}

// Disconnect announces offline and disconnects. No-op if disabled.
func (c *Client) Disconnect() {
	if !c.enabled || c.client == nil {
		return
	}
	if c.client.IsConnectionOpen() {
		c.client.Publish(c.Topic("status"), 1, true, statusOffline).WaitTimeout(time.Second)
	}
	c.client.Disconnect(250)
	c.log.Info().Msg("MQTT disconnected")
}

// Publish sends v to the subtopic. Strings and byte slices are sent as is,
// anything else as JSON. No-op if disabled.
func (c *Client) Publish(subtopic string, v any) error {
	if !c.enabled {
		return nil
	}
	payload, err := encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subtopic, err)
	}
	token := c.client.Publish(c.Topic(subtopic), 0, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	default:
		return nil
	}
}

// IsEnabled returns whether MQTT is enabled.
func (c *Client) IsEnabled() bool {
	return c.enabled
}

func encode(v any) ([]byte, error) {
	switch p := v.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	default:
		return json.Marshal(v)
	}
}

func (c *Client) handleConnect(client paho.Client) {
	c.log.Info().Str("client_id", c.clientID).Msg("MQTT connection established")
	client.Publish(c.Topic("status"), 1, true, statusOnline)
}

func (c *Client) handleConnectionLost(_ paho.Client, err error) {
	c.log.Warn().Err(err).Msg("MQTT connection lost")
}
