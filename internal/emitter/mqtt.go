// Package emitter publishes session lifecycle events to the MQTT broker so
// the study operator's UI can follow each participant's capture attempt.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/config"
	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/session"
)

// stateChangeMsg is the wire shape of one session transition.
type stateChangeMsg struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Detail        string `json:"detail,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// MQTTEmitter publishes session events to the MQTT broker. It implements
// session.Notifier; notification delivery never blocks the session loop.
type MQTTEmitter struct {
	cfg    *config.Config
	Client mqtt.Client // Exported for control plane

	outbox chan stateChangeMsg

	mu        sync.RWMutex
	published uint64
	dropped   uint64
	errors    uint64
	connected bool
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published uint64
	Dropped   uint64
	Errors    uint64
}

// NewMQTTEmitter creates a new MQTT emitter
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:    cfg,
		outbox: make(chan stateChangeMsg, 64),
	}
}

// Connect establishes connection to the MQTT broker and starts the
// publish worker.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.MQTT.Broker))
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.cfg.MQTT.Broker,
			"client_id", e.cfg.InstanceID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.MQTT.Broker)
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.MQTT.Broker)

	token := e.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	go e.drain(ctx)

	return nil
}

// SessionStateChanged implements session.Notifier. Called inline from the
// session loop, so it only enqueues; a full outbox drops the event rather
// than stalling capture.
func (e *MQTTEmitter) SessionStateChanged(ev session.StateChange) {
	msg := stateChangeMsg{
		SessionID:     ev.SessionID,
		ParticipantID: ev.ParticipantID,
		From:          ev.From.String(),
		To:            ev.To.String(),
		Detail:        ev.Detail,
		Timestamp:     ev.At.UTC().Format(time.RFC3339Nano),
	}
	select {
	case e.outbox <- msg:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		slog.Warn("emitter outbox full, state change dropped",
			"session_id", ev.SessionID, "to", msg.To)
	}
}

// drain publishes queued state changes until the context ends.
func (e *MQTTEmitter) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.outbox:
			if err := e.publish(msg); err != nil {
				slog.Error("failed to publish state change",
					"session_id", msg.SessionID, "error", err)
			}
		}
	}
}

// publish sends one state change to the sessions topic.
func (e *MQTTEmitter) publish(msg stateChangeMsg) error {
	if !e.isConnected() {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("mqtt not connected")
	}

	topic := e.cfg.MQTT.Topics.Sessions
	qos := e.getQoS("sessions")

	payload, err := json.Marshal(msg)
	if err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("failed to marshal state change: %w", err)
	}

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("state change published",
		"topic", topic,
		"session_id", msg.SessionID,
		"to", msg.To,
	)
	return nil
}

// PublishHealth publishes a health message
func (e *MQTTEmitter) PublishHealth(payload []byte) error {
	if !e.isConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	topic := e.cfg.MQTT.Topics.Health
	qos := e.getQoS("health")

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}

	return token.Error()
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	return nil
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Connected: e.connected,
		Published: e.published,
		Dropped:   e.dropped,
		Errors:    e.errors,
	}
}

// isConnected returns connection status
func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

// getQoS returns the QoS level for a given message class
func (e *MQTTEmitter) getQoS(class string) byte {
	if qos, ok := e.cfg.MQTT.QoS[class]; ok {
		return qos
	}
	return 0
}
