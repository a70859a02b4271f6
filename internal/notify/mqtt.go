package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
	Topic    string
}

// MQTTSender publishes alert notifications to an MQTT broker so phones
// and home automation can subscribe to them.
type MQTTSender struct {
	client mqtt.Client
	topic  string
}

type mqttAlert struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMQTTSenderFromEnv builds a sender from MQTT_* environment
// variables, defaulting to a local broker.
func NewMQTTSenderFromEnv(defaultClientID string) (*MQTTSender, error) {
	port := 1883
	if v := os.Getenv("MQTT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			port = p
		}
	}
	return NewMQTTSender(MQTTConfig{
		Host:     getenv("MQTT_HOST", "localhost"),
		Port:     port,
		Username: os.Getenv("MQTT_USERNAME"),
		Password: os.Getenv("MQTT_PASSWORD"),
		ClientID: getenv("MQTT_CLIENT_ID", defaultClientID),
		Topic:    getenv("MQTT_ALERT_TOPIC", "falconeye/alerts"),
	})
}

// NewMQTTSender connects to the broker.
func NewMQTTSender(cfg MQTTConfig) (*MQTTSender, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}

	log.Printf("[Notify] Connected to MQTT broker %s, topic=%s", broker, cfg.Topic)
	return &MQTTSender{client: cli, topic: cfg.Topic}, nil
}

// Send publishes the alert and reports whether delivery succeeded.
func (s *MQTTSender) Send(title, body string, tags []string) bool {
	payload, err := json.Marshal(mqttAlert{
		Title:     title,
		Body:      body,
		Tags:      tags,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("[Notify] Failed to encode alert: %v", err)
		return false
	}

	token := s.client.Publish(s.topic, 1, false, payload)
	if ok := token.WaitTimeout(5 * time.Second); !ok {
		log.Printf("[Notify] Publish timed out")
		return false
	}
	if err := token.Error(); err != nil {
		log.Printf("[Notify] Publish failed: %v", err)
		return false
	}
	return true
}

// Close disconnects from the broker.
func (s *MQTTSender) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
