package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jirutka/smarwi2mqtt/internal/smarwi"
	"github.com/jirutka/smarwi2mqtt/internal/store"
)

// Publisher sends MQTT messages towards SMARWI devices. Implemented by the
// MQTT bridge.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// DeviceState is a read-only snapshot of a device, served over the web API
// and used to build MQTT state payloads. Pointer fields are nil while the
// value has not been reported yet.
type DeviceState struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	FriendlyName string         `json:"friendly_name,omitempty"`
	Available    bool           `json:"available"`
	FWVersion    string         `json:"fw_version,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	Closed       *bool          `json:"closed,omitempty"`
	RidgeFixed   bool           `json:"ridge_fixed"`
	RidgeInside  bool           `json:"ridge_inside"`
	RSSI         *int           `json:"rssi,omitempty"`
	StateCode    string         `json:"state_code"`
	CoverState   string         `json:"cover_state"`
	Position     *int           `json:"position,omitempty"`
	Finetune     map[string]int `json:"finetune,omitempty"`
	LastSeen     time.Time      `json:"last_seen"`
}

// Device handles communication with a single SMARWI unit. Inbound status and
// availability updates arrive via HandleStatus/HandleOnline; commands go out
// on the device's cmd topic through the registry's Publisher.
type Device struct {
	id        string
	baseTopic string
	reg       *Registry
	logger    *slog.Logger

	mu           sync.Mutex
	available    bool
	status       smarwi.Status
	settings     map[string]int
	tracker      *smarwi.PositionTracker
	friendlyName string
	ipAddr       string // last known dotted IPv4, survives restarts
	lastSeen     time.Time
}

func newDevice(reg *Registry, id string) *Device {
	return &Device{
		id:        id,
		baseTopic: fmt.Sprintf("ion/%s/%%%s", reg.remoteID, id),
		reg:       reg,
		logger:    reg.logger.With("device", id),
		status:    smarwi.Status{},
		tracker:   smarwi.NewPositionTracker(),
	}
}

// ID returns the device ID (the suffix of the SMARWI remote ID).
func (d *Device) ID() string { return d.id }

// BaseTopic returns the device's MQTT topic prefix, ion/<remote-id>/%<id>.
func (d *Device) BaseTopic() string { return d.baseTopic }

// Available reports whether the device is online.
func (d *Device) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.available
}

// State returns a snapshot of the device.
func (d *Device) State() DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

func (d *Device) stateLocked() DeviceState {
	code := d.status.StateCode()
	st := DeviceState{
		ID:           d.id,
		Name:         d.status.Name(),
		FriendlyName: d.friendlyName,
		Available:    d.available,
		FWVersion:    d.status.FWVersion(),
		IPAddress:    d.ipAddr,
		RidgeFixed:   d.status.RidgeFixed(),
		RidgeInside:  d.status.RidgeInside(),
		StateCode:    code.String(),
		LastSeen:     d.lastSeen,
	}

	closed, knownPos := d.status.Closed()
	if knownPos {
		c := closed
		st.Closed = &c
	}
	st.CoverState = d.tracker.CoverState(code, closed && knownPos)
	if pos := d.tracker.Position(); pos >= 0 {
		p := pos
		st.Position = &p
	}
	if rssi, ok := d.status.RSSI(); ok {
		r := rssi
		st.RSSI = &r
	}
	if len(d.settings) > 0 {
		st.Finetune = make(map[string]int, len(d.settings))
		for k, v := range d.settings {
			st.Finetune[k] = v
		}
	}
	return st
}

// HandleOnline processes a message from the device's online topic.
func (d *Device) HandleOnline(payload string) {
	available := payload == "1"

	d.mu.Lock()
	changed := available != d.available
	d.available = available
	d.lastSeen = time.Now()
	name := d.status.Name()
	d.mu.Unlock()

	if !changed {
		return
	}
	if available {
		d.logger.Info("SMARWI became available", "name", name)
	} else {
		d.logger.Info("SMARWI became unavailable", "name", name)
	}
	d.reg.events.Emit(Event{Type: EventAvailability, Data: map[string]interface{}{
		"device":    d.id,
		"available": available,
	}})
}

// HandleStatus processes a message from the device's status topic.
func (d *Device) HandleStatus(payload string) {
	status, err := smarwi.ParseStatus(payload)
	if err != nil {
		d.logger.Warn("malformed status payload", "err", err)
		return
	}

	d.mu.Lock()
	changed := status.ChangedKeys(d.status)
	ipChanged := false
	for _, key := range changed {
		if key == smarwi.KeyIPAddress {
			ipChanged = true
		}
	}
	d.status = status
	if ip := status.IPAddress(); ip != "" {
		d.ipAddr = ip
	}
	d.lastSeen = time.Now()
	closed, _ := status.Closed()
	d.tracker.Update(status.StateCode(), closed)
	st := d.stateLocked()
	d.mu.Unlock()

	d.logger.Debug("status update", "state_code", st.StateCode, "changed", len(changed))

	if len(changed) > 0 {
		d.persist(st)
	}
	for _, key := range changed {
		d.reg.events.Emit(Event{Type: EventPropertyUpdate, Data: map[string]interface{}{
			"device":   d.id,
			"property": string(key),
			"value":    status[key],
		}})
	}
	if ipChanged && st.IPAddress != "" {
		go d.refreshFinetune(st.IPAddress)
	}
}

// Open opens the window to the given position in percent. Positions below 2
// close the window instead, matching the SMARWI firmware semantics.
func (d *Device) Open(ctx context.Context, position int) error {
	if position <= 1 {
		return d.Close(ctx)
	}
	if position > 100 {
		position = 100
	}
	d.logger.Info("opening window", "position", position)

	d.mu.Lock()
	d.tracker.SetTarget(position)
	d.mu.Unlock()

	return d.command(ctx, fmt.Sprintf("open;%d", position))
}

// Close closes the window.
func (d *Device) Close(ctx context.Context) error {
	d.logger.Info("closing window")

	d.mu.Lock()
	d.tracker.SetTarget(0)
	d.mu.Unlock()

	return d.command(ctx, "close")
}

// Stop stops the window movement. A no-op while idle, because "stop" on an
// idle SMARWI releases the ridge instead.
func (d *Device) Stop(ctx context.Context) error {
	d.mu.Lock()
	moving := d.status.StateCode().IsMoving()
	if moving {
		d.tracker.ClearTarget()
	}
	d.mu.Unlock()

	if !moving {
		return nil
	}
	d.logger.Info("stopping window movement")
	return d.command(ctx, "stop")
}

// SetRidgeFixed fixes (true) or releases (false) the ridge. Both map to the
// "stop" command with guards: fixing only when the ridge is loose, releasing
// only when it is fixed and the motor is idle.
func (d *Device) SetRidgeFixed(ctx context.Context, fixed bool) error {
	d.mu.Lock()
	ridgeFixed := d.status.RidgeFixed()
	idle := d.status.StateCode().IsIdle()
	d.mu.Unlock()

	if fixed {
		if ridgeFixed {
			return nil
		}
		d.logger.Info("fixing ridge")
		return d.command(ctx, "stop")
	}
	if ridgeFixed && idle {
		d.logger.Info("releasing ridge")
		return d.command(ctx, "stop")
	}
	return nil
}

// Finetune returns a copy of the cached finetune settings.
func (d *Device) Finetune() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.settings))
	for k, v := range d.settings {
		out[k] = v
	}
	return out
}

// SetFinetune updates a single finetune setting over the device's HTTP
// interface and reloads the settings afterwards.
func (d *Device) SetFinetune(ctx context.Context, key string, value int) error {
	if !smarwi.IsFinetuneKey(key) {
		return fmt.Errorf("unknown finetune setting: %q", key)
	}

	d.mu.Lock()
	host := d.ipAddr
	settings := make(map[string]int, len(d.settings)+1)
	for k, v := range d.settings {
		settings[k] = v
	}
	d.mu.Unlock()

	if host == "" {
		return fmt.Errorf("device %s: IP address not known yet", d.id)
	}
	settings[key] = value

	if err := d.reg.finetune.Store(ctx, host, settings); err != nil {
		return fmt.Errorf("store finetune settings: %w", err)
	}
	d.refreshFinetune(host)
	return nil
}

// refreshFinetune reloads the finetune settings from the device and emits
// a finetune_update event when they could be fetched.
func (d *Device) refreshFinetune(host string) {
	ctx, cancel := context.WithTimeout(d.reg.ctx, 15*time.Second)
	defer cancel()

	settings, err := d.reg.finetune.Load(ctx, host)
	if err != nil {
		d.logger.Warn("load finetune settings", "err", err)
		return
	}

	d.mu.Lock()
	d.settings = settings
	st := d.stateLocked()
	d.mu.Unlock()

	d.persist(st)
	d.reg.events.Emit(Event{Type: EventFinetuneUpdate, Data: map[string]interface{}{
		"device":   d.id,
		"settings": settings,
	}})
}

// SetFriendlyName updates the user-assigned name and persists it.
func (d *Device) SetFriendlyName(name string) {
	d.mu.Lock()
	d.friendlyName = name
	st := d.stateLocked()
	d.mu.Unlock()
	d.persist(st)
}

func (d *Device) command(ctx context.Context, payload string) error {
	topic := d.baseTopic + "/cmd"
	d.logger.Debug("sending command", "topic", topic, "payload", payload)
	return d.reg.pub.Publish(ctx, topic, []byte(payload))
}

// persist updates the stored record in place, keeping fields the runtime
// state does not carry (DiscoveredAt).
func (d *Device) persist(st DeviceState) {
	update := func(rec *store.Device) error {
		rec.Name = st.Name
		rec.FriendlyName = st.FriendlyName
		rec.FWVersion = st.FWVersion
		rec.IPAddress = st.IPAddress
		rec.LastSeen = st.LastSeen
		rec.Finetune = st.Finetune
		return nil
	}

	err := d.reg.store.UpdateDevice(st.ID, update)
	if errors.Is(err, store.ErrNotFound) {
		rec := &store.Device{ID: st.ID, DiscoveredAt: time.Now()}
		update(rec)
		err = d.reg.store.SaveDevice(rec)
	}
	if err != nil {
		d.logger.Error("persist device", "err", err)
	}
}

// restore pre-fills the device from a persisted record.
func (d *Device) restore(rec *store.Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.friendlyName = rec.FriendlyName
	d.ipAddr = rec.IPAddress
	d.lastSeen = rec.LastSeen
	if rec.Name != "" {
		d.status[smarwi.KeyName] = rec.Name
	}
	if rec.FWVersion != "" {
		d.status[smarwi.KeyFWVersion] = rec.FWVersion
	}
	if len(rec.Finetune) > 0 {
		d.settings = make(map[string]int, len(rec.Finetune))
		for k, v := range rec.Finetune {
			d.settings[k] = v
		}
	}
}
