package mqtt

import (
	"fmt"

	"github.com/jirutka/smarwi2mqtt/internal/registry"
	"github.com/jirutka/smarwi2mqtt/internal/smarwi"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/cover/smarwi_abc123/window/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers      []string `json:"identifiers"`
	Manufacturer     string   `json:"manufacturer,omitempty"`
	Model            string   `json:"model,omitempty"`
	Name             string   `json:"name"`
	SWVersion        string   `json:"sw_version,omitempty"`
	ConfigurationURL string   `json:"configuration_url,omitempty"`
}

// haAvailability is one entry of the "availability" list in HA discovery.
type haAvailability struct {
	Topic string `json:"topic"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string           `json:"name"`
	UniqueID          string           `json:"unique_id"`
	StateTopic        string           `json:"state_topic,omitempty"`
	CommandTopic      string           `json:"command_topic,omitempty"`
	Availability      []haAvailability `json:"availability,omitempty"`
	AvailabilityMode  string           `json:"availability_mode,omitempty"`
	ValueTemplate     string           `json:"value_template,omitempty"`
	UnitOfMeasurement string           `json:"unit_of_measurement,omitempty"`
	DeviceClass       string           `json:"device_class,omitempty"`
	EntityCategory    string           `json:"entity_category,omitempty"`
	EnabledByDefault  *bool            `json:"enabled_by_default,omitempty"`
	PayloadOn         string           `json:"payload_on,omitempty"`
	PayloadOff        string           `json:"payload_off,omitempty"`
	PositionTopic     string           `json:"position_topic,omitempty"`
	PositionTemplate  string           `json:"position_template,omitempty"`
	SetPositionTopic  string           `json:"set_position_topic,omitempty"`
	Min               *int             `json:"min,omitempty"`
	Max               *int             `json:"max,omitempty"`
	Step              int              `json:"step,omitempty"`
	Mode              string           `json:"mode,omitempty"`
	Device            haDevice         `json:"device"`
}

// finetuneNames maps finetune setting keys to entity names.
var finetuneNames = map[string]string{
	smarwi.FinetuneMaxOpenPosition:    "Maximum open position",
	smarwi.FinetuneMoveSpeed:          "Movement speed",
	smarwi.FinetuneFrameSpeed:         "Near frame speed",
	smarwi.FinetuneMovePower:          "Movement power",
	smarwi.FinetuneFramePower:         "Near frame power",
	smarwi.FinetuneClosedHoldPower:    "Closed holding power",
	smarwi.FinetuneOpenedHoldPower:    "Opened holding power",
	smarwi.FinetuneClosedPosition:     "Closed position finetune",
	smarwi.FinetuneLockErrTrigger:     "Window locked error trigger",
	smarwi.FinetuneCalibratedDistance: "Calibrated distance",
}

// displayName returns a display name for the device.
func displayName(st registry.DeviceState) string {
	if st.FriendlyName != "" {
		return st.FriendlyName
	}
	if st.Name != "" {
		return st.Name
	}
	return "SMARWI " + st.ID
}

// deviceIdentifier returns the unique identifier for the HA device registry.
func deviceIdentifier(id string) string {
	return "smarwi_" + id
}

// buildDiscovery generates HA discovery messages for one SMARWI device:
// a window cover, the ridge fixation switch, the ridge tamper binary sensor,
// the WiFi signal sensor, and a number entity per finetune setting.
func buildDiscovery(st registry.DeviceState, prefix, discoveryPrefix string) []discoveryMsg {
	nodeID := deviceIdentifier(st.ID)
	base := prefix + "/" + st.ID
	stateTopic := base + "/state"

	avail := []haAvailability{
		{Topic: prefix + "/bridge/state"},
		{Topic: base + "/availability"},
	}

	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: "Vektiva",
		Model:        "SMARWI",
		Name:         displayName(st),
		SWVersion:    st.FWVersion,
	}
	if st.IPAddress != "" {
		haDev.ConfigurationURL = "http://" + st.IPAddress
	}

	disabled := false

	msgs := []discoveryMsg{
		// Cover has a third availability topic that drops while the device
		// reports an error state code.
		{
			Topic: fmt.Sprintf("%s/cover/%s/window/config", discoveryPrefix, nodeID),
			Payload: mustJSON(haDiscovery{
				Name:             "Window",
				UniqueID:         nodeID + "_window",
				DeviceClass:      "window",
				StateTopic:       stateTopic,
				ValueTemplate:    "{{ value_json.state }}",
				CommandTopic:     base + "/cover/set",
				PositionTopic:    stateTopic,
				PositionTemplate: "{{ value_json.position if value_json.position is not none }}",
				SetPositionTopic: base + "/cover/set_position",
				Availability:     append(avail, haAvailability{Topic: base + "/cover/availability"}),
				AvailabilityMode: "all",
				Device:           haDev,
			}),
		},
		{
			Topic: fmt.Sprintf("%s/switch/%s/ridge_fixed/config", discoveryPrefix, nodeID),
			Payload: mustJSON(haDiscovery{
				Name:             "Ridge fixed",
				UniqueID:         nodeID + "_ridge_fixed",
				StateTopic:       stateTopic,
				ValueTemplate:    "{{ value_json.ridge_fixed }}",
				CommandTopic:     base + "/ridge_fixed/set",
				PayloadOn:        "ON",
				PayloadOff:       "OFF",
				Availability:     avail,
				AvailabilityMode: "all",
				Device:           haDev,
			}),
		},
		{
			Topic: fmt.Sprintf("%s/binary_sensor/%s/ridge_inside/config", discoveryPrefix, nodeID),
			Payload: mustJSON(haDiscovery{
				Name:             "Ridge inside",
				UniqueID:         nodeID + "_ridge_inside",
				DeviceClass:      "tamper",
				EntityCategory:   "diagnostic",
				StateTopic:       stateTopic,
				ValueTemplate:    "{{ 'OFF' if value_json.ridge_inside else 'ON' }}",
				PayloadOn:        "ON",
				PayloadOff:       "OFF",
				Availability:     avail,
				AvailabilityMode: "all",
				Device:           haDev,
			}),
		},
		{
			Topic: fmt.Sprintf("%s/sensor/%s/rssi/config", discoveryPrefix, nodeID),
			Payload: mustJSON(haDiscovery{
				Name:              "WiFi signal",
				UniqueID:          nodeID + "_rssi",
				DeviceClass:       "signal_strength",
				EntityCategory:    "diagnostic",
				EnabledByDefault:  &disabled,
				UnitOfMeasurement: "dB",
				StateTopic:        stateTopic,
				ValueTemplate:     "{{ value_json.rssi }}",
				Availability:      avail,
				AvailabilityMode:  "all",
				Device:            haDev,
			}),
		},
	}

	for _, spec := range smarwi.FinetuneSpecs() {
		spec := spec
		cfg := haDiscovery{
			Name:              finetuneNames[spec.Key],
			UniqueID:          nodeID + "_" + spec.Key,
			EntityCategory:    "config",
			StateTopic:        base + "/finetune",
			ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", spec.Key),
			CommandTopic:      fmt.Sprintf("%s/finetune/%s/set", base, spec.Key),
			UnitOfMeasurement: spec.Unit,
			Min:               &spec.Min,
			Max:               &spec.Max,
			Step:              1,
			Availability:      avail,
			AvailabilityMode:  "all",
			Device:            haDev,
		}
		if spec.BoxMode {
			cfg.Mode = "box"
		}
		if spec.Disabled {
			cfg.EnabledByDefault = &disabled
		}
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("%s/number/%s/%s/config", discoveryPrefix, nodeID, spec.Key),
			Payload: mustJSON(cfg),
		})
	}

	return msgs
}

// buildRemoveDiscovery generates empty retained messages to remove a device
// from HA.
func buildRemoveDiscovery(id, discoveryPrefix string) []discoveryMsg {
	nodeID := deviceIdentifier(id)

	components := []struct{ comp, obj string }{
		{"cover", "window"},
		{"switch", "ridge_fixed"},
		{"binary_sensor", "ridge_inside"},
		{"sensor", "rssi"},
	}
	for _, spec := range smarwi.FinetuneSpecs() {
		components = append(components, struct{ comp, obj string }{"number", spec.Key})
	}

	var msgs []discoveryMsg
	for _, c := range components {
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("%s/%s/%s/%s/config", discoveryPrefix, c.comp, nodeID, c.obj),
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}
