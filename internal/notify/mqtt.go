package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/padd/internal/eventbus"
)

const (
	mqttConnectTimeout    = 10 * time.Second
	mqttPublishTimeout    = 5 * time.Second
	mqttDisconnectQuiesce = 250 // milliseconds
	mqttKeepAlive         = 60 * time.Second
)

// MQTTConfig configures the MQTT mirror of bus events.
type MQTTConfig struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// mqttPublisher is the part of the paho client the sink uses.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink mirrors bus events to <prefix>/events/<type> and keeps a retained
// <prefix>/status topic with online/offline.
type MQTTSink struct {
	client mqttPublisher
	cfg    MQTTConfig
}

// DialMQTT connects to the broker with auto-reconnect and a last will that
// marks the daemon offline.
func DialMQTT(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "padd"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "padd"
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetWill(statusTopic(cfg.TopicPrefix), statusPayload("offline", cfg.ClientID), cfg.QoS, true)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout after %v", cfg.Broker, mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	s := newMQTTSink(client, cfg)
	s.publish(statusTopic(cfg.TopicPrefix), true, statusPayload("online", cfg.ClientID))
	log.Info().Str("broker", cfg.Broker).Str("prefix", cfg.TopicPrefix).Msg("MQTT sink connected")
	return s, nil
}

func newMQTTSink(client mqttPublisher, cfg MQTTConfig) *MQTTSink {
	return &MQTTSink{client: client, cfg: cfg}
}

// Handle publishes one bus event. It is meant for eventbus.SubscribeAll.
func (s *MQTTSink) Handle(e eventbus.Event) {
	payload, err := json.Marshal(map[string]any{
		"type": string(e.Type),
		"data": e.Data,
		"at":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Warn().Err(err).Str("event_type", string(e.Type)).Msg("Failed to encode event for MQTT")
		return
	}
	s.publish(EventTopic(s.cfg.TopicPrefix, e.Type), false, payload)
}

// Close publishes the graceful offline status and disconnects.
func (s *MQTTSink) Close() {
	s.publish(statusTopic(s.cfg.TopicPrefix), true, statusPayload("offline", s.cfg.ClientID))
	s.client.Disconnect(mqttDisconnectQuiesce)
}

func (s *MQTTSink) publish(topic string, retained bool, payload any) {
	token := s.client.Publish(topic, s.cfg.QoS, retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		log.Warn().Str("topic", topic).Msg("MQTT publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
}

// EventTopic returns the topic events of type t are published on.
func EventTopic(prefix string, t eventbus.EventType) string {
	return strings.TrimSuffix(prefix, "/") + "/events/" + string(t)
}

func statusTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/status"
}

func statusPayload(status, clientID string) string {
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`,
		status, clientID, time.Now().UTC().Format(time.RFC3339))
}
