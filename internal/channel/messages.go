package channel

import "encoding/json"

// Envelope is the outer shape of every inbound push message. The type
// discriminator selects which other fields are meaningful.
type Envelope struct {
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data,omitempty"`
	Text        string          `json:"text,omitempty"`
	Emotion     string          `json:"emotion,omitempty"`
	DisplayTime int             `json:"display_time,omitempty"` // milliseconds
	PresetSound string          `json:"presetSound,omitempty"`
	Command     string          `json:"command,omitempty"`
	Success     bool            `json:"success,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// NotificationData is the payload of "notification" messages.
type NotificationData struct {
	Message     string  `json:"message"`
	MessageType string  `json:"messageType"`
	Title       string  `json:"title,omitempty"`
	Importance  string  `json:"importance,omitempty"`
	Timestamp   float64 `json:"timestamp,omitempty"`
	SkipAudio   bool    `json:"skipAudio,omitempty"`
	Count       int     `json:"count,omitempty"`
}

// StatusData is the payload of "status" messages.
type StatusData struct {
	MonitoringActive bool   `json:"monitoring_active"`
	ServerStatus     string `json:"server_status"`
}

// pingMessage is the handshake sent right after the channel opens.
type pingMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// commandMessage asks the backend to run a command, e.g. start monitoring.
type commandMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// categoryForMessageType maps the backend's camelCase notification types
// onto the snake_case categories the cooldown table is keyed by.
func categoryForMessageType(messageType string) string {
	switch messageType {
	case "zombieAlert":
		return "zombie_alert"
	case "fewZombiesAlert":
		return "zombie_few_alert"
	case "zombieWarning":
		return "zombie_warning"
	case "":
		return "notification"
	default:
		return messageType
	}
}
