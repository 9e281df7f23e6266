// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttTimeout = 5 * time.Second

// MQTTConfig configures an MQTT socket
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string // topic prefix, messages go to <Topic>/<dest>
	ClientID string
	Username string
	Password string
}

// MQTTSocket exchanges envelopes through an MQTT broker. The socket
// subscribes to every address below its topic prefix so that it sees the
// whole bus, like a shared serial bus would.
type MQTTSocket struct {
	*packetSocket
	client mqtt.Client
	prefix string
}

// DialMQTT connects to the broker and subscribes to the topic prefix
func DialMQTT(cfg MQTTConfig, opts SocketOptions) (*MQTTSocket, error) {
	prefix := strings.TrimSuffix(cfg.Topic, "/")
	if prefix == "" {
		prefix = "hmtl"
	}
	s := &MQTTSocket{
		packetSocket: newPacketSocket("mqtt", opts),
		prefix:       prefix,
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("hmtlnode-%08x", s.origin)
	}

	mopts := mqtt.NewClientOptions()
	mopts.AddBroker(cfg.Broker)
	mopts.SetClientID(clientID)
	mopts.SetKeepAlive(10 * time.Second)
	mopts.SetAutoReconnect(true)
	mopts.Username = cfg.Username
	mopts.Password = cfg.Password
	mopts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", "err", err)
	}
	mopts.OnConnect = func(c mqtt.Client) {
		// Subscriptions do not survive a clean session reconnect
		if t := c.Subscribe(s.prefix+"/+", 0, nil); t.WaitTimeout(mqttTimeout) && t.Error() != nil {
			s.logger.Error("mqtt subscribe failed", "topic", s.prefix+"/+", "err", t.Error())
		}
	}
	mopts.DefaultPublishHandler = func(_ mqtt.Client, msg mqtt.Message) {
		s.deliver(msg.Payload())
	}

	s.client = mqtt.NewClient(mopts)
	if t := s.client.Connect(); !t.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	} else if t.Error() != nil {
		return nil, fmt.Errorf("mqtt connect to %s failed: %w", cfg.Broker, t.Error())
	}
	s.logger.Info("mqtt socket connected", "broker", cfg.Broker, "topic", s.prefix)
	return s, nil
}

// TopicFor returns the topic messages to dest are published on
func TopicFor(prefix string, dest uint16) string {
	return strings.TrimSuffix(prefix, "/") + "/" + strconv.Itoa(int(dest))
}

// SendTo publishes data on the destination's topic
func (s *MQTTSocket) SendTo(dest uint16, data []byte) error {
	payload, err := s.seal(dest, data)
	if err != nil {
		return err
	}
	t := s.client.Publish(TopicFor(s.prefix, dest), 0, false, payload)
	if !t.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("mqtt publish to %d timed out", dest)
	}
	return t.Error()
}

// Close disconnects from the broker
func (s *MQTTSocket) Close() error {
	if !s.markClosed() {
		return nil
	}
	s.client.Disconnect(250)
	return nil
}
