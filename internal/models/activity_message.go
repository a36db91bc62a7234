package models

import "time"

// DeviceActivityMessage is published to the activity queue after a new event
// commits. The worker consumes it to advance the device's last_seen_at.
type DeviceActivityMessage struct {
	DeviceID   string    `json:"device_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
