package rig

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MergeRequest asks for a merge of two source rigs over MQTT
type MergeRequest struct {
	Head string `json:"head"`
	Body string `json:"body"`
}

// MergeRequestHandler is called for every valid request received on the request topic
type MergeRequestHandler func(req MergeRequest)

// MQTTClient manages the broker connection used for reports and remote merge requests
type MQTTClient struct {
	client         mqtt.Client
	config         MQTTConfig
	requestHandler MergeRequestHandler
	isConnected    bool
	mu             sync.RWMutex
}

// InitMQTT connects to the configured broker in the background.
// It returns nil when no broker is configured.
func InitMQTT(config MQTTConfig, handler MergeRequestHandler) (*MQTTClient, error) {
	if config.Broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if !strings.Contains(config.Broker, "://") {
		return nil, fmt.Errorf("mqtt.broker must include a scheme (tcp://host:1883): %s", config.Broker)
	}

	client := &MQTTClient{
		config:         config,
		requestHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)

	clientID := config.ClientID
	if clientID == "" {
		clientID = "headswap"
	}
	opts.SetClientID(clientID)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(true) // requests are served one at a time

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	return client, nil
}

// RequestTopic is the topic merge requests are read from
func (c *MQTTClient) RequestTopic() string {
	return fmt.Sprintf("%s/merge/set", publishPrefix(c.config))
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	if c.requestHandler == nil {
		return
	}

	topic := c.RequestTopic()
	log.Printf("MQTT connected, subscribing to %s", topic)
	token := client.Subscribe(topic, 1, c.createRequestHandler())
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("Error subscribing to %s: %v", topic, token.Error())
	} else {
		log.Printf("Successfully subscribed to %s", topic)
	}
}

// onConnectionLost is called when the MQTT connection is lost.
// Auto-reconnect is enabled, so this is typically a transient event.
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// createRequestHandler decodes merge requests and drops malformed ones
func (c *MQTTClient) createRequestHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("Received merge request (topic: %s, size: %d bytes)", msg.Topic(), len(payload))

		var req MergeRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			log.Printf("Error decoding merge request: %v", err)
			return
		}
		if req.Head == "" || req.Body == "" {
			log.Printf("Ignoring merge request without head and body")
			return
		}
		c.requestHandler(req)
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient around a provided mqtt.Client
func newMQTTClientWithMock(client mqtt.Client, config MQTTConfig, handler MergeRequestHandler) *MQTTClient {
	return &MQTTClient{
		client:         client,
		config:         config,
		requestHandler: handler,
	}
}

func publishPrefix(config MQTTConfig) string {
	if config.PublishPrefix == "" {
		return "headswap"
	}
	return config.PublishPrefix
}
