package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jirutka/smarwi2mqtt/internal/registry"
	"github.com/jirutka/smarwi2mqtt/internal/smarwi"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker          string
	Username        string
	Password        string
	ClientID        string
	TopicPrefix     string // prefix for bridge state/command topics
	DiscoveryPrefix string // Home Assistant discovery prefix
}

// Bridge connects SMARWI devices to Home Assistant over a single MQTT
// session: it consumes the devices' ion/<remote-id>/... topics, republishes
// state under its own prefix, and announces entities via HA MQTT discovery.
type Bridge struct {
	client    pahomqtt.Client
	reg       *registry.Registry
	prefix    string
	discovery string
	logger    *slog.Logger
	unsub     func()
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(reg *registry.Registry, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		reg:       reg,
		prefix:    cfg.TopicPrefix,
		discovery: cfg.DiscoveryPrefix,
		logger:    logger.With("component", "mqtt"),
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "smarwi2mqtt"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.subscribeDeviceTopics()
			b.subscribeCommands()
			b.publishAllDiscovery()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to registry events and begins republishing.
func (b *Bridge) Start() {
	b.unsub = b.reg.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix, "remote_id", b.reg.RemoteID())
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// Publish implements registry.Publisher for outbound device commands.
func (b *Bridge) Publish(ctx context.Context, topic string, payload []byte) error {
	token := b.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) handleEvent(event registry.Event) {
	data, ok := event.Data.(map[string]interface{})
	if !ok {
		return
	}
	id, _ := data["device"].(string)
	if id == "" {
		return
	}

	if event.Type == registry.EventDeviceRemoved {
		b.removeDevice(id)
		return
	}

	dev := b.reg.Device(id)
	if dev == nil {
		return
	}

	switch event.Type {
	case registry.EventDeviceDiscovered:
		b.publishDeviceDiscovery(dev)
	case registry.EventAvailability:
		b.publishAvailability(dev)
	case registry.EventPropertyUpdate:
		b.publishState(dev)
		prop, _ := data["property"].(string)
		switch smarwi.StatusKey(prop) {
		case smarwi.KeyName, smarwi.KeyFWVersion, smarwi.KeyIPAddress:
			// Device metadata shown in the HA device registry changed.
			b.publishDeviceDiscovery(dev)
		}
	case registry.EventFinetuneUpdate:
		b.publishFinetune(dev)
	}
}

// subscribeDeviceTopics subscribes to the SMARWI-side topics and routes
// messages into the registry.
func (b *Bridge) subscribeDeviceTopics() {
	handler := func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.reg.HandleMessage(msg.Topic(), msg.Payload())
	}
	for _, topic := range []string{b.reg.OnlineTopic(), b.reg.StatusTopic()} {
		if token := b.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			b.logger.Error("subscribe", "topic", topic, "err", token.Error())
		}
	}
}

// subscribeCommands subscribes to the Home-Assistant-side command topics.
func (b *Bridge) subscribeCommands() {
	subs := map[string]func(id string, payload []byte){
		b.prefix + "/+/cover/set":          b.handleCoverCommand,
		b.prefix + "/+/cover/set_position": b.handleCoverPosition,
		b.prefix + "/+/ridge_fixed/set":    b.handleRidgeFixedCommand,
	}
	for topic, handle := range subs {
		handle := handle
		token := b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			parts := strings.Split(msg.Topic(), "/")
			if len(parts) < 2 {
				return
			}
			handle(parts[1], msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			b.logger.Error("subscribe", "topic", topic, "err", token.Error())
		}
	}

	// Finetune commands carry the setting key as an extra topic segment:
	// <prefix>/<id>/finetune/<key>/set.
	topic := b.prefix + "/+/finetune/+/set"
	token := b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		parts := strings.Split(msg.Topic(), "/")
		if len(parts) < 5 {
			return
		}
		b.handleFinetuneCommand(parts[1], parts[3], msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		b.logger.Error("subscribe", "topic", topic, "err", token.Error())
	}
}

func (b *Bridge) handleCoverCommand(id string, payload []byte) {
	dev := b.reg.Device(id)
	if dev == nil {
		b.logger.Warn("command for unknown device", "id", id)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch cmd := strings.ToUpper(strings.TrimSpace(string(payload))); cmd {
	case "OPEN":
		err = dev.Open(ctx, 100)
	case "CLOSE":
		err = dev.Close(ctx)
	case "STOP":
		err = dev.Stop(ctx)
	default:
		b.logger.Warn("unknown cover command", "id", id, "payload", cmd)
		return
	}
	if err != nil {
		b.logger.Warn("cover command failed", "id", id, "err", err)
	}
}

func (b *Bridge) handleCoverPosition(id string, payload []byte) {
	dev := b.reg.Device(id)
	if dev == nil {
		b.logger.Warn("command for unknown device", "id", id)
		return
	}
	pos, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil || pos < 0 || pos > 100 {
		b.logger.Warn("invalid cover position", "id", id, "payload", string(payload))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dev.Open(ctx, pos); err != nil {
		b.logger.Warn("set position failed", "id", id, "err", err)
	}
}

func (b *Bridge) handleRidgeFixedCommand(id string, payload []byte) {
	dev := b.reg.Device(id)
	if dev == nil {
		b.logger.Warn("command for unknown device", "id", id)
		return
	}

	var fixed bool
	switch cmd := strings.ToUpper(strings.TrimSpace(string(payload))); cmd {
	case "ON":
		fixed = true
	case "OFF":
		fixed = false
	default:
		b.logger.Warn("unknown ridge_fixed command", "id", id, "payload", cmd)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dev.SetRidgeFixed(ctx, fixed); err != nil {
		b.logger.Warn("ridge_fixed command failed", "id", id, "err", err)
	}
}

func (b *Bridge) handleFinetuneCommand(id, key string, payload []byte) {
	dev := b.reg.Device(id)
	if dev == nil {
		b.logger.Warn("command for unknown device", "id", id)
		return
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		b.logger.Warn("invalid finetune value", "id", id, "key", key, "payload", string(payload))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := dev.SetFinetune(ctx, key, value); err != nil {
		b.logger.Warn("finetune command failed", "id", id, "key", key, "err", err)
	}
}

// removeDevice clears the retained discovery and state topics of a forgotten
// device so Home Assistant drops its entities.
func (b *Bridge) removeDevice(id string) {
	for _, msg := range buildRemoveDiscovery(id, b.discovery) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	base := b.prefix + "/" + id
	for _, topic := range []string{
		base + "/state",
		base + "/availability",
		base + "/cover/availability",
		base + "/finetune",
	} {
		b.publish(topic, nil, true)
	}
	b.logger.Info("removed HA discovery", "id", id)
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publishAllDiscovery() {
	for _, dev := range b.reg.Devices() {
		b.publishDeviceDiscovery(dev)
		b.publishAvailability(dev)
		b.publishState(dev)
		b.publishFinetune(dev)
	}
}

func (b *Bridge) publishDeviceDiscovery(dev *registry.Device) {
	st := dev.State()
	for _, msg := range buildDiscovery(st, b.prefix, b.discovery) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.logger.Info("published HA discovery", "id", st.ID, "name", displayName(st))
}

func (b *Bridge) publishAvailability(dev *registry.Device) {
	st := dev.State()
	payload := "offline"
	if st.Available {
		payload = "online"
	}
	b.publish(b.prefix+"/"+st.ID+"/availability", []byte(payload), true)
	b.publishCoverAvailability(st)
}

func (b *Bridge) publishState(dev *registry.Device) {
	st := dev.State()
	b.publish(b.prefix+"/"+st.ID+"/state", mustJSON(buildStatePayload(st)), true)
	b.publishCoverAvailability(st)
}

// publishCoverAvailability takes the cover entity offline while the device
// reports an error state (locked window, move timeout, calibration).
func (b *Bridge) publishCoverAvailability(st registry.DeviceState) {
	payload := "online"
	if smarwi.StateCodeByName(st.StateCode).IsError() {
		payload = "offline"
	}
	b.publish(b.prefix+"/"+st.ID+"/cover/availability", []byte(payload), true)
}

func (b *Bridge) publishFinetune(dev *registry.Device) {
	settings := dev.Finetune()
	if len(settings) == 0 {
		return
	}
	b.publish(b.prefix+"/"+dev.ID()+"/finetune", mustJSON(settings), true)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

// statePayload is the retained per-device state JSON consumed by the
// discovery value templates. Position is null while it cannot be determined.
type statePayload struct {
	State       string `json:"state"`
	Position    *int   `json:"position"`
	StateCode   string `json:"state_code"`
	RidgeFixed  string `json:"ridge_fixed"`
	RidgeInside bool   `json:"ridge_inside"`
	RSSI        *int   `json:"rssi,omitempty"`
}

func buildStatePayload(st registry.DeviceState) statePayload {
	p := statePayload{
		State:       st.CoverState,
		Position:    st.Position,
		StateCode:   st.StateCode,
		RidgeFixed:  "OFF",
		RidgeInside: st.RidgeInside,
		RSSI:        st.RSSI,
	}
	if st.RidgeFixed {
		p.RidgeFixed = "ON"
	}
	return p
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
