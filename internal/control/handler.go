// Package control is the MQTT control plane: it subscribes to the control
// topic, maps commands onto player callbacks and acknowledges each one on
// the status topic.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
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

// Topics names the control plane's MQTT topics.
type Topics struct {
	Control string
	Status  string
	QoS     map[string]byte
}

// Callbacks contains the player operations the control plane can invoke.
type Callbacks struct {
	OnPlay           func(source, quality string) (map[string]interface{}, error)
	OnStop           func() error
	OnTogglePause    func() (bool, error)
	OnSeek           func(seconds float64) error
	OnSetVolume      func(volume int) error
	OnSetSpeed       func(speed float64) error
	OnSetLoop        func(loop bool) error
	OnSetMute        func(mute bool) error
	OnSetAudioDevice func(id string) error
	OnGetStatus      func() map[string]interface{}
	OnShutdown       func() error
}

// Handler handles control plane commands
type Handler struct {
	topics   Topics
	client   mqtt.Client
	commands chan Command

	// callbacks is set at construction and never mutated afterwards.
	callbacks Callbacks
}

// NewHandler creates a new control plane handler
func NewHandler(client mqtt.Client, topics Topics, callbacks Callbacks) *Handler {
	return &Handler{
		topics:    topics,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}
}

// Start starts listening for control commands
func (h *Handler) Start(ctx context.Context) error {
	topic := h.topics.Control
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
	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(h.topics.Control)
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
	case "play":
		if h.callbacks.OnPlay == nil {
			resp.Status = "error"
			resp.Error = "play not implemented"
			break
		}
		source, ok := cmd.Params["source"].(string)
		if !ok || source == "" {
			resp.Status = "error"
			resp.Error = "missing or invalid 'source' parameter (expected string)"
			break
		}
		quality, _ := cmd.Params["quality"].(string)
		data, err := h.callbacks.OnPlay(source, quality)
		if err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		} else {
			resp.Status = "success"
			resp.Data = data
		}

	case "stop":
		if h.callbacks.OnStop == nil {
			resp.Status = "error"
			resp.Error = "stop not implemented"
			break
		}
		if err := h.callbacks.OnStop(); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		} else {
			resp.Status = "success"
			resp.Data = map[string]interface{}{"output_active": false}
		}

	case "toggle_pause":
		if h.callbacks.OnTogglePause == nil {
			resp.Status = "error"
			resp.Error = "toggle_pause not implemented"
			break
		}
		paused, err := h.callbacks.OnTogglePause()
		if err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		} else {
			resp.Status = "success"
			resp.Data = map[string]interface{}{"paused": paused}
		}

	case "seek":
		if h.callbacks.OnSeek == nil {
			resp.Status = "error"
			resp.Error = "seek not implemented"
			break
		}
		seconds, ok := cmd.Params["seconds"].(float64)
		if !ok {
			resp.Status = "error"
			resp.Error = "missing or invalid 'seconds' parameter (expected float)"
			break
		}
		if err := h.callbacks.OnSeek(seconds); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		} else {
			resp.Status = "success"
			resp.Data = map[string]interface{}{"position": seconds}
		}

	case "set_volume":
		if h.callbacks.OnSetVolume == nil {
			resp.Status = "error"
			resp.Error = "set_volume not implemented"
			break
		}
		volume, ok := cmd.Params["volume"].(float64)
		if !ok {
			resp.Status = "error"
			resp.Error = "missing or invalid 'volume' parameter (expected 0-100)"
			break
		}
		if err := h.callbacks.OnSetVolume(int(volume)); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		} else {
			resp.Status = "success"
			resp.Data = map[string]interface{}{"volume": int(volume)}
		}

	case "set_speed":
		if h.callbacks.OnSetSpeed == nil {
			resp.Status = "error"
			resp.Error = "set_speed not implemented"
			break
		}
		speed, ok := cmd.Params["speed"].(float64)
		if !ok {
			resp.Status = "error"
			resp.Error = "missing or invalid 'speed' parameter (expected 0.25-4.0)"
			break
		}
		if err := h.callbacks.OnSetSpeed(speed); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		} else {
			resp.Status = "success"
			resp.Data = map[string]interface{}{"speed": speed}
		}

	case "set_loop":
		if h.callbacks.OnSetLoop == nil {
			resp.Status = "error"
			resp.Error = "set_loop not implemented"
			break
		}
		loop, ok := cmd.Params["loop"].(bool)
		if !ok {
			resp.Status = "error"
			resp.Error = "missing or invalid 'loop' parameter (expected bool)"
			break
		}
		if err := h.callbacks.OnSetLoop(loop); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		} else {
			resp.Status = "success"
			resp.Data = map[string]interface{}{"loop": loop}
		}

	case "set_mute":
		if h.callbacks.OnSetMute == nil {
			resp.Status = "error"
			resp.Error = "set_mute not implemented"
			break
		}
		mute, ok := cmd.Params["mute"].(bool)
		if !ok {
			resp.Status = "error"
			resp.Error = "missing or invalid 'mute' parameter (expected bool)"
			break
		}
		if err := h.callbacks.OnSetMute(mute); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		} else {
			resp.Status = "success"
			resp.Data = map[string]interface{}{"muted": mute}
		}

	case "set_audio_device":
		if h.callbacks.OnSetAudioDevice == nil {
			resp.Status = "error"
			resp.Error = "set_audio_device not implemented"
			break
		}
		device, ok := cmd.Params["device"].(string)
		if !ok || device == "" {
			resp.Status = "error"
			resp.Error = "missing or invalid 'device' parameter (expected string)"
			break
		}
		if err := h.callbacks.OnSetAudioDevice(device); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		} else {
			resp.Status = "success"
			resp.Data = map[string]interface{}{"device": device}
		}

	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
			break
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case "shutdown":
		if h.callbacks.OnShutdown == nil {
			resp.Status = "error"
			resp.Error = "shutdown not implemented"
			break
		}
		slog.Warn("shutdown command received via MQTT control plane")
		resp.Status = "success"
		resp.Data = map[string]interface{}{"shutdown_initiated": true}
		// Send the ack before triggering shutdown so it actually goes out.
		h.sendResponse(resp)
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := h.callbacks.OnShutdown(); err != nil {
				slog.Error("shutdown callback failed", "error", err)
			}
		}()
		return

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	h.sendResponse(resp)
}

// sendResponse sends a response to the status topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	token := h.client.Publish(h.topics.Status, h.qos("status"), false, payload)
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

func (h *Handler) qos(kind string) byte {
	if q, ok := h.topics.QoS[kind]; ok {
		return q
	}
	return 0
}
