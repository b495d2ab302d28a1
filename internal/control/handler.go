// Package control subscribes to the MQTT control topic and maps operator
// commands onto the capture lifecycle.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jsukup/facial-sentiment-analysis-sub000/internal/config"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// CommandCallbacks contains callback functions for commands
type CommandCallbacks struct {
	OnGetStatus func() map[string]interface{}
	// OnRegisterParticipant stores a participant's demographics ahead of
	// their capture attempt
	OnRegisterParticipant func(participantID string, demographics map[string]interface{}) error
	// OnArm begins a capture attempt for the participant: camera goes live
	OnArm func(participantID string) error
	// OnStart begins sampling against the stimulus clock
	OnStart func() error
	// OnStop ends capture; natural marks the stimulus reaching its end
	// rather than an operator abort
	OnStop func(natural bool) error
	// OnTeardown abandons the attempt and releases the camera
	OnTeardown func() error
	OnShutdown func() error
}

// Handler handles control plane commands
type Handler struct {
	cfg      *config.Config
	client   mqtt.Client
	commands chan Command

	callbacks CommandCallbacks
}

// NewHandler creates a new control plane handler
func NewHandler(cfg *config.Config, client mqtt.Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}
}

// Start starts listening for control commands
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control
	qos := h.qos("control")

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")

	go h.processCommands(ctx)

	return nil
}

// Stop stops the control plane handler
func (h *Handler) Stop() error {
	topic := h.cfg.MQTT.Topics.Control

	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(topic)
		token.Wait()
	}

	close(h.commands)

	slog.Info("control plane handler stopped")
	return nil
}

// messageHandler is called when a control message is received
func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

// processCommands processes commands from the queue
func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.handleCommand(cmd)
		}
	}
}

// handleCommand executes a command
func (h *Handler) handleCommand(cmd Command) {
	var resp Response
	resp.CommandAck = cmd.Command

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus != nil {
			resp.Status = "success"
			resp.Data = h.callbacks.OnGetStatus()
		} else {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
		}

	case "register_participant":
		if h.callbacks.OnRegisterParticipant != nil {
			pid, ok := cmd.Params["participant_id"].(string)
			if !ok || pid == "" {
				resp.Status = "error"
				resp.Error = "missing or invalid 'participant_id' parameter (expected string)"
			} else {
				demo, _ := cmd.Params["demographics"].(map[string]interface{})
				if err := h.callbacks.OnRegisterParticipant(pid, demo); err != nil {
					resp.Status = "error"
					resp.Error = err.Error()
				} else {
					resp.Status = "success"
					resp.Data = map[string]interface{}{
						"participant_id": pid,
						"message":        "participant registered",
					}
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "register_participant not implemented"
		}

	case "arm":
		if h.callbacks.OnArm != nil {
			pid, ok := cmd.Params["participant_id"].(string)
			if !ok || pid == "" {
				resp.Status = "error"
				resp.Error = "missing or invalid 'participant_id' parameter (expected string)"
			} else {
				if err := h.callbacks.OnArm(pid); err != nil {
					resp.Status = "error"
					resp.Error = err.Error()
				} else {
					resp.Status = "success"
					resp.Data = map[string]interface{}{
						"participant_id": pid,
						"message":        "camera armed",
					}
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "arm not implemented"
		}

	case "start":
		if h.callbacks.OnStart != nil {
			if err := h.callbacks.OnStart(); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "success"
				resp.Data = map[string]interface{}{
					"message": "capture started",
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "start not implemented"
		}

	case "stop":
		if h.callbacks.OnStop != nil {
			natural, _ := cmd.Params["stimulus_ended"].(bool)
			if err := h.callbacks.OnStop(natural); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "success"
				resp.Data = map[string]interface{}{
					"stimulus_ended": natural,
					"message":        "capture stopping",
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "stop not implemented"
		}

	case "teardown":
		if h.callbacks.OnTeardown != nil {
			if err := h.callbacks.OnTeardown(); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "success"
				resp.Data = map[string]interface{}{
					"message": "session torn down",
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "teardown not implemented"
		}

	case "shutdown":
		if h.callbacks.OnShutdown != nil {
			slog.Warn("shutdown command received via MQTT control plane")
			resp.Status = "success"
			resp.Data = map[string]interface{}{
				"shutdown_initiated": true,
				"message":            "graceful shutdown in progress",
			}
			// Send response BEFORE triggering shutdown
			h.sendResponse(resp)

			go func() {
				time.Sleep(500 * time.Millisecond)
				if err := h.callbacks.OnShutdown(); err != nil {
					slog.Error("shutdown callback failed", "error", err)
				}
			}()
			return
		}
		resp.Status = "error"
		resp.Error = "shutdown not implemented"

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	h.sendResponse(resp)
}

// sendResponse sends a response to the health topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	topic := h.cfg.MQTT.Topics.Health
	qos := h.qos("health")

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}

func (h *Handler) qos(class string) byte {
	if q, ok := h.cfg.MQTT.QoS[class]; ok {
		return q
	}
	return 0
}
