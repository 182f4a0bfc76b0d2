package rig

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned when publishing without a connected client
var ErrNotConnected = errors.New("MQTT client not connected")

// Publisher publishes merge reports to <prefix>/merges
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *MergeReport
	mu            sync.RWMutex
}

// NewPublisher creates a report publisher.
// If client is nil, publishing is disabled.
func NewPublisher(client mqtt.Client, config MQTTConfig) *Publisher {
	p := &Publisher{
		client:        client,
		publishPrefix: publishPrefix(config),
		retain:        true, // latest report stays visible to new subscribers
	}
	p.SetQoS(config.QoS)
	return p
}

// Topic returns the report topic
func (p *Publisher) Topic() string {
	return fmt.Sprintf("%s/merges", p.publishPrefix)
}

// PublishReport publishes a merge report
func (p *Publisher) PublishReport(report *MergeReport) error {
	if report == nil {
		return errors.New("nil report")
	}

	p.mu.Lock()
	p.last = report
	p.mu.Unlock()

	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	topic := p.Topic()
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Printf("Published merge report to %s (success=%v)", topic, report.Succeeded())
	return nil
}

// LastReport returns a copy of the most recently published report
func (p *Publisher) LastReport() (*MergeReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return nil, false
	}
	r := *p.last
	return &r, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
