// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultTopic        = "armctl/telemetry"
	DefaultPublishEvery = 10
	connectTimeout      = 5 * time.Second
	disconnectQuiesce   = 250 // ms
)

// Publisher is the part of mqtt.Client used by MQTTSink.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes every Nth record as JSON. Publishing never blocks the
// control loop: tokens are not waited on and failures are only logged.
type MQTTSink struct {
	client Publisher
	topic  string
	every  int
	count  int
	logger *zap.SugaredLogger
}

// MQTTOptions configures DialMQTT.
type MQTTOptions struct {
	Broker   string // tcp://host:1883
	ClientID string
	Topic    string
	Every    int
	Logger   *zap.SugaredLogger
}

// DialMQTT connects to the broker and returns a sink publishing to it.
func DialMQTT(o MQTTOptions) (*MQTTSink, error) {
	if o.Broker == "" {
		return nil, errors.New("mqtt: broker required")
	}
	if o.ClientID == "" {
		o.ClientID = "armctl"
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	logger := o.Logger

	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.OnConnect = func(mqtt.Client) {
		logger.Infow("connected to MQTT broker", "broker", o.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warnw("MQTT connection lost", "broker", o.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, errors.Errorf("mqtt: connect to %s timed out", o.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt: connect to %s", o.Broker)
	}
	return NewMQTTSink(client, o.Topic, o.Every, logger), nil
}

// NewMQTTSink wraps an already connected client.
func NewMQTTSink(client Publisher, topic string, every int, logger *zap.SugaredLogger) *MQTTSink {
	if topic == "" {
		topic = DefaultTopic
	}
	if every <= 0 {
		every = DefaultPublishEvery
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MQTTSink{client: client, topic: topic, every: every, logger: logger}
}

// Write publishes r if it falls on the publish cadence.
func (s *MQTTSink) Write(r Record) error {
	s.count++
	if (s.count-1)%s.every != 0 {
		return nil
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "mqtt: encode record")
	}
	token := s.client.Publish(s.topic, 0, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			s.logger.Debugw("MQTT publish failed", "error", token.Error())
		}
	}()
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(disconnectQuiesce)
	return nil
}
