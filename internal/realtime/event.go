// Package realtime connects to the inventory push channel and turns its
// mutation events into cache invalidations.
package realtime

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Event is one frame of the push channel: {"event": "itemUpdated", "data": {...}}.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EntityID extracts the record id carried by the event. Deleted events send
// the bare id; updated events send an object with an "id" field. Numeric
// strings are accepted for both.
func (e Event) EntityID() (uint, bool) {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, false
	}
	if data[0] == '{' {
		var obj struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return 0, false
		}
		return parseID(obj.ID)
	}
	return parseID(data)
}

func parseID(raw json.RawMessage) (uint, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
