package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"terra-eye/internal/toast"
)

var errNotConnected = errors.New("not connected to MQTT broker")

// MQTTSink publishes alerts as JSON to a broker topic
type MQTTSink struct {
	broker string
	topic  string
	client mqtt.Client
}

// NewMQTTSink prepares a sink. Call Connect before sending.
func NewMQTTSink(broker, clientID, username, password, topic string) *MQTTSink {
	s := &MQTTSink{broker: broker, topic: topic}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("📡 Connected to MQTT broker: %s", broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("⚠️ Connection to MQTT broker lost: %s, error: %v", broker, err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect dials the broker, waiting at most until ctx is done or 30 seconds
func (s *MQTTSink) Connect(ctx context.Context) error {
	timeout := 30 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	token := s.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connect to %s: timeout", s.broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", s.broker, err)
	}
	return nil
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Send publishes the alert to the configured topic
func (s *MQTTSink) Send(ctx context.Context, t *toast.Toast) error {
	if !s.client.IsConnected() {
		return errNotConnected
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}

	token := s.client.Publish(s.topic, 1, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish to %s: %w", s.topic, ctx.Err())
	}
}

// Close disconnects from the broker
func (s *MQTTSink) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
