package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jirutka/smarwi2mqtt/internal/smarwi"
	"github.com/jirutka/smarwi2mqtt/internal/store"
)

// Registry tracks all SMARWI devices sharing one remote ID. Devices are
// discovered from retained messages on ion/<remote-id>/+/online and restored
// from the store at startup so Home Assistant discovery can be republished
// before a device reports again.
type Registry struct {
	remoteID string
	logger   *slog.Logger
	events   *EventBus
	store    store.Store
	finetune *smarwi.FinetuneClient
	pub      Publisher

	mu      sync.RWMutex
	devices map[string]*Device

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a registry for the given remote ID.
func New(remoteID string, st store.Store, logger *slog.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	reg := &Registry{
		remoteID: remoteID,
		logger:   logger.With("component", "registry"),
		events:   NewEventBus(logger),
		store:    st,
		finetune: smarwi.NewFinetuneClient(10*time.Second, logger),
		devices:  make(map[string]*Device),
		ctx:      ctx,
		cancel:   cancel,
	}
	return reg
}

// SetPublisher wires the command transport. Must be called before any
// inbound message is handled.
func (r *Registry) SetPublisher(pub Publisher) {
	r.pub = pub
}

// RemoteID returns the configured SMARWI remote ID.
func (r *Registry) RemoteID() string { return r.remoteID }

// Events returns the registry event bus.
func (r *Registry) Events() *EventBus { return r.events }

// LoadPersisted restores devices known from a previous run.
func (r *Registry) LoadPersisted() error {
	records, err := r.store.ListDevices()
	if err != nil {
		return fmt.Errorf("list persisted devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		if _, ok := r.devices[rec.ID]; ok {
			continue
		}
		dev := newDevice(r, rec.ID)
		dev.restore(rec)
		r.devices[rec.ID] = dev
	}
	if len(records) > 0 {
		r.logger.Info("restored devices from store", "count", len(records))
	}
	return nil
}

// OnlineTopic returns the wildcard subscription for availability messages.
func (r *Registry) OnlineTopic() string {
	return fmt.Sprintf("ion/%s/+/online", r.remoteID)
}

// StatusTopic returns the wildcard subscription for status messages.
func (r *Registry) StatusTopic() string {
	return fmt.Sprintf("ion/%s/+/status", r.remoteID)
}

// HandleMessage routes an inbound SMARWI MQTT message by topic. Messages for
// unknown devices create the device (discovery).
func (r *Registry) HandleMessage(topic string, payload []byte) {
	deviceID, kind, err := parseDeviceTopic(topic)
	if err != nil {
		r.logger.Debug("ignoring message", "topic", topic, "err", err)
		return
	}

	dev := r.ensureDevice(deviceID)
	switch kind {
	case "online":
		dev.HandleOnline(string(payload))
	case "status":
		dev.HandleStatus(string(payload))
	}
}

// ensureDevice returns the device with the given ID, creating and announcing
// it when seen for the first time.
func (r *Registry) ensureDevice(id string) *Device {
	r.mu.RLock()
	dev, ok := r.devices[id]
	r.mu.RUnlock()
	if ok {
		return dev
	}

	r.mu.Lock()
	dev, ok = r.devices[id]
	if !ok {
		dev = newDevice(r, id)
		r.devices[id] = dev
	}
	r.mu.Unlock()
	if ok {
		return dev
	}

	r.logger.Info("discovered new SMARWI device", "id", id)
	if err := r.store.SaveDevice(&store.Device{ID: id, DiscoveredAt: time.Now()}); err != nil {
		r.logger.Error("persist discovered device", "err", err)
	}
	r.events.Emit(Event{Type: EventDeviceDiscovered, Data: map[string]interface{}{
		"device": id,
	}})
	return dev
}

// Device returns a device by ID, or nil.
func (r *Registry) Device(id string) *Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices[id]
}

// Devices returns all known devices sorted by ID.
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	devices := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].id < devices[j].id })
	return devices
}

// Forget removes a device from the registry and the store.
func (r *Registry) Forget(id string) error {
	r.mu.Lock()
	delete(r.devices, id)
	r.mu.Unlock()

	if err := r.store.DeleteDevice(id); err != nil {
		return err
	}
	r.events.Emit(Event{Type: EventDeviceRemoved, Data: map[string]interface{}{
		"device": id,
	}})
	return nil
}

// Close cancels background operations (finetune refreshes).
func (r *Registry) Close() {
	r.cancel()
}

// parseDeviceTopic extracts the device ID and message kind from a topic like
// ion/<remote-id>/%<device-id>/online.
func parseDeviceTopic(topic string) (deviceID, kind string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return "", "", fmt.Errorf("unexpected topic depth: %q", topic)
	}
	id := strings.TrimPrefix(parts[2], "%")
	if id == "" {
		return "", "", fmt.Errorf("empty device id in topic: %q", topic)
	}
	switch parts[3] {
	case "online", "status":
		return id, parts[3], nil
	}
	return "", "", fmt.Errorf("unexpected topic suffix: %q", topic)
}
