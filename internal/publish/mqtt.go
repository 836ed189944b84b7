package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mqttClient is the part of mqtt.Client the transport uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTConfig configures an MQTT transport.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// MQTTTransport publishes each event to <topic>/<soldier_id> so a broker keeps
// every agent's events in order.
type MQTTTransport struct {
	client mqttClient
	topic  string
	qos    byte
}

// NewMQTTTransport connects to the broker.
func NewMQTTTransport(cfg MQTTConfig) (*MQTTTransport, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, err)
	}
	return &MQTTTransport{client: client, topic: cfg.Topic, qos: cfg.QoS}, nil
}

// Publish sends msg and waits for the token until ctx expires. A publish the
// client could not complete in time is reported as overflow.
func (t *MQTTTransport) Publish(ctx context.Context, msg Message) error {
	token := t.client.Publish(t.topicFor(msg), t.qos, false, msg.Value)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrOverflow, ctx.Err())
	}
}

func (t *MQTTTransport) topicFor(msg Message) string {
	base := msg.Topic
	if base == "" {
		base = t.topic
	}
	return base + "/" + msg.Key
}

// Subscribe receives every agent's events until ctx is done.
func (t *MQTTTransport) Subscribe(ctx context.Context, h Handler) error {
	filter := t.topic + "/#"
	prefix := t.topic + "/"
	token := t.client.Subscribe(filter, t.qos, func(_ mqtt.Client, m mqtt.Message) {
		_ = h(ctx, Message{
			Topic: t.topic,
			Key:   strings.TrimPrefix(m.Topic(), prefix),
			Value: m.Payload(),
		})
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", filter, err)
	}
	<-ctx.Done()
	t.client.Unsubscribe(filter).Wait()
	return nil
}

// Close disconnects from the broker, giving in-flight messages time to leave.
func (t *MQTTTransport) Close() error {
	t.client.Disconnect(250)
	return nil
}
