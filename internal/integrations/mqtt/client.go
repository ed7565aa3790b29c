package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"facegate/config"
	"facegate/internal/core/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Client publishes security events to an MQTT broker so external systems
// (door controllers, alarm panels) can react to gate decisions.
type Client struct {
	config config.MQTTConfig
	client mqtt.Client
}

// NewClient creates a new MQTT client from configuration.
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{config: cfg}
}

// Start connects the client to the broker. A disabled client is a no-op.
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	log.Info("MQTT client connected successfully")
	return nil
}

// Stop disconnects the client from the broker.
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		c.client.Disconnect(250)
	}
}

// IsConnected reports whether the client holds a broker connection.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)
}

func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
}

// eventPayload is the wire form of a published security event.
type eventPayload struct {
	Timestamp time.Time       `json:"timestamp"`
	Status    string          `json:"status"`
	UserName  string          `json:"user_name,omitempty"`
	Score     *float64        `json:"score,omitempty"`
	Note      string          `json:"note,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// PublishEvent publishes an audit event on the configured topic. Satisfies
// the audit publisher interface. Publish failures are logged, never
// propagated: broker availability must not affect gate decisions.
func (c *Client) PublishEvent(event models.EventLog) {
	if !c.IsConnected() {
		return
	}

	payload, err := json.Marshal(eventPayload{
		Timestamp: event.Timestamp,
		Status:    event.Status,
		UserName:  event.UserName,
		Score:     event.Score,
		Note:      event.Note,
		Details:   json.RawMessage(event.Details),
	})
	if err != nil {
		log.Errorf("Failed to marshal MQTT event payload: %v", err)
		return
	}

	token := c.client.Publish(c.config.Topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		log.Errorf("Failed to publish event to topic %s: %v", c.config.Topic, token.Error())
	}
}
