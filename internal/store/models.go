package store

import "time"

// Device is the persisted record of a SMARWI device. Live state (position,
// availability, state code) is intentionally not stored; it is rebuilt from
// the device's retained MQTT messages after a restart.
type Device struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	FriendlyName string         `json:"friendly_name,omitempty"`
	FWVersion    string         `json:"fw_version,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	DiscoveredAt time.Time      `json:"discovered_at"`
	LastSeen     time.Time      `json:"last_seen"`
	Finetune     map[string]int `json:"finetune,omitempty"`
}
