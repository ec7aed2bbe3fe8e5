// Package notify fans attendance records out to live listeners: WebSocket clients and an MQTT broker.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/vmihailenco/msgpack/v5"
)

// Event is the payload sent for every persisted record.
type Event struct {
	Type      string `json:"type" msgpack:"type"`
	Name      string `json:"name" msgpack:"name"`
	Timestamp string `json:"timestamp" msgpack:"timestamp"`
}

func eventFor(rec types.AttendanceRecord) Event {
	return Event{Type: "seen", Name: rec.Name, Timestamp: rec.Timestamp}
}

// Encode serializes rec as "json" (the default) or "msgpack".
func Encode(format string, rec types.AttendanceRecord) ([]byte, error) {
	ev := eventFor(rec)
	switch format {
	case "", "json":
		return json.Marshal(ev)
	case "msgpack":
		return msgpack.Marshal(ev)
	default:
		return nil, fmt.Errorf("unknown payload format %q", format)
	}
}
