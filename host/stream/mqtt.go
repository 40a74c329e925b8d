package stream

import (
	"encoding/json"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gobricks/config"
)

// publishTimeout bounds the wait for a publish to be handed to the broker.
const publishTimeout = 2 * time.Second

// MQTT publishes points to <topic>/<servo id> and accepts command lines
// on <topic>/cmd.
type MQTT struct {
	client mqtt.Client
	topic  string
	log    zerolog.Logger
}

// DialMQTT connects to the broker named in cfg.
func DialMQTT(cfg config.StreamConfig, log zerolog.Logger) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", cfg.MQTT).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}
	client := mqtt.NewClient(opts)
	if tok := client.Connect(); tok.WaitTimeout(10*time.Second) && tok.Error() != nil {
		return nil, errors.Wrapf(tok.Error(), "connect %s", cfg.MQTT)
	}
	return NewMQTT(client, cfg.Topic, log), nil
}

// NewMQTT publishes with an already configured client.
func NewMQTT(client mqtt.Client, topic string, log zerolog.Logger) *MQTT {
	return &MQTT{client: client, topic: topic, log: log}
}

// Topic returns where points of servo id are published.
func (m *MQTT) Topic(id uint8) string {
	return m.topic + "/" + strconv.Itoa(int(id))
}

// CommandTopic is where command lines are received.
func (m *MQTT) CommandTopic() string {
	return m.topic + "/cmd"
}

func (m *MQTT) Publish(p Point) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode point")
	}
	tok := m.client.Publish(m.Topic(p.ID), 0, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return errors.Errorf("publish to %s timed out", m.Topic(p.ID))
	}
	return tok.Error()
}

// OnCommand calls fn with each command line received. fn runs on the
// client's goroutine.
func (m *MQTT) OnCommand(fn func(line string)) error {
	tok := m.client.Subscribe(m.CommandTopic(), 1, func(_ mqtt.Client, msg mqtt.Message) {
		fn(string(msg.Payload()))
	})
	if !tok.WaitTimeout(publishTimeout) {
		return errors.Errorf("subscribe to %s timed out", m.CommandTopic())
	}
	return tok.Error()
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
