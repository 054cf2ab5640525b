//go:build !no_automation

package automation

import (
	"context"
	"time"

	"github.com/jirutka/smarwi2mqtt/internal/registry"

	lua "github.com/yuin/gopher-lua"
)

// registerSmarwiModule registers the `smarwi` global table in a Lua state.
func registerSmarwiModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return smarwiOn(L, vm)
	}))

	mod.RawSetString("open", L.NewFunction(func(L *lua.LState) int {
		return smarwiOpen(L, e)
	}))

	mod.RawSetString("close", L.NewFunction(func(L *lua.LState) int {
		return smarwiClose(L, e)
	}))

	mod.RawSetString("stop", L.NewFunction(func(L *lua.LState) int {
		return smarwiStop(L, e)
	}))

	mod.RawSetString("set_ridge_fixed", L.NewFunction(func(L *lua.LState) int {
		return smarwiSetRidgeFixed(L, e)
	}))

	mod.RawSetString("get_state", L.NewFunction(func(L *lua.LState) int {
		return smarwiGetState(L, e)
	}))

	mod.RawSetString("after", L.NewFunction(func(L *lua.LState) int {
		return smarwiAfter(L, vm, e)
	}))

	mod.RawSetString("sleep", L.NewFunction(func(L *lua.LState) int {
		return smarwiSleep(L, vm)
	}))

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		return smarwiLog(L, e)
	}))

	mod.RawSetString("devices", L.NewFunction(func(L *lua.LState) int {
		return smarwiDevices(L, e)
	}))

	L.SetGlobal("smarwi", mod)
}

const maxHandlersPerScript = 100

// smarwi.on(type, filter, callback)
func smarwiOn(L *lua.LState, vm *scriptVM) int {
	eventType := L.CheckString(1)
	filterTable := L.CheckTable(2)
	fn := L.CheckFunction(3)

	h := luaEventHandler{
		eventType: eventType,
		fn:        fn,
	}

	if v := filterTable.RawGetString("device"); v != lua.LNil {
		h.device = v.String()
	}
	if v := filterTable.RawGetString("property"); v != lua.LNil {
		h.property = v.String()
	}

	vm.mu.Lock()
	if len(vm.handlers) >= maxHandlersPerScript {
		vm.mu.Unlock()
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	vm.mu.Unlock()

	return 0
}

// smarwi.open(id_or_name [, position]) — position is 1-100 percent
func smarwiOpen(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	position := 100
	if L.GetTop() >= 2 {
		position = L.CheckInt(2)
	}

	dev := resolveDevice(e, target)
	if dev == nil {
		e.logger.Warn("device not found", "target", target)
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := dev.Open(ctx, position); err != nil {
		e.logger.Error("open command", "err", err, "target", target)
	}
	return 0
}

// smarwi.close(id_or_name)
func smarwiClose(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)

	dev := resolveDevice(e, target)
	if dev == nil {
		e.logger.Warn("device not found", "target", target)
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := dev.Close(ctx); err != nil {
		e.logger.Error("close command", "err", err, "target", target)
	}
	return 0
}

// smarwi.stop(id_or_name)
func smarwiStop(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)

	dev := resolveDevice(e, target)
	if dev == nil {
		e.logger.Warn("device not found", "target", target)
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := dev.Stop(ctx); err != nil {
		e.logger.Error("stop command", "err", err, "target", target)
	}
	return 0
}

// smarwi.set_ridge_fixed(id_or_name, fixed)
func smarwiSetRidgeFixed(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	fixed := L.CheckBool(2)

	dev := resolveDevice(e, target)
	if dev == nil {
		e.logger.Warn("device not found", "target", target)
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := dev.SetRidgeFixed(ctx, fixed); err != nil {
		e.logger.Error("set ridge_fixed", "err", err, "target", target)
	}
	return 0
}

// smarwi.get_state(id_or_name, field)
func smarwiGetState(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	field := L.CheckString(2)

	dev := resolveDevice(e, target)
	if dev == nil {
		L.Push(lua.LNil)
		return 1
	}

	st := dev.State()
	switch field {
	case "available":
		L.Push(lua.LBool(st.Available))
	case "closed":
		if st.Closed == nil {
			L.Push(lua.LNil)
		} else {
			L.Push(lua.LBool(*st.Closed))
		}
	case "ridge_fixed":
		L.Push(lua.LBool(st.RidgeFixed))
	case "ridge_inside":
		L.Push(lua.LBool(st.RidgeInside))
	case "rssi":
		if st.RSSI == nil {
			L.Push(lua.LNil)
		} else {
			L.Push(lua.LNumber(*st.RSSI))
		}
	case "state_code":
		L.Push(lua.LString(st.StateCode))
	case "cover_state":
		L.Push(lua.LString(st.CoverState))
	case "position":
		if st.Position == nil {
			L.Push(lua.LNil)
		} else {
			L.Push(lua.LNumber(*st.Position))
		}
	case "ip_address":
		L.Push(lua.LString(st.IPAddress))
	case "fw_version":
		L.Push(lua.LString(st.FWVersion))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

// smarwi.after(seconds, callback) — delayed execution
func smarwiAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		// Send callback execution to the VM's command channel
		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{
				Fn:      fn,
				NRet:    0,
				Protect: true,
			}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full")
		}
	}()

	return 0
}

// smarwi.sleep(ms) — pauses the script. Aborts when the VM is stopped.
func smarwiSleep(L *lua.LState, vm *scriptVM) int {
	ms := L.CheckInt(1)
	if ms < 0 {
		ms = 0
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-vm.ctx.Done():
		L.RaiseError("script stopped during sleep")
	}
	return 0
}

// smarwi.log(msg)
func smarwiLog(L *lua.LState, e *Engine) int {
	msg := L.CheckString(1)
	e.logger.Info("script log", "msg", msg)
	return 0
}

// smarwi.devices() — returns a table of all known devices
func smarwiDevices(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	for i, dev := range e.reg.Devices() {
		st := dev.State()
		d := L.NewTable()
		d.RawSetString("id", lua.LString(st.ID))
		name := st.FriendlyName
		if name == "" {
			name = st.Name
		}
		d.RawSetString("name", lua.LString(name))
		d.RawSetString("available", lua.LBool(st.Available))
		d.RawSetString("cover_state", lua.LString(st.CoverState))
		if st.Position != nil {
			d.RawSetString("position", lua.LNumber(*st.Position))
		}
		tbl.RawSetInt(i+1, d)
	}

	L.Push(tbl)
	return 1
}

// resolveDevice finds a device by ID or friendly name.
func resolveDevice(e *Engine, target string) *registry.Device {
	if dev := e.reg.Device(target); dev != nil {
		return dev
	}
	for _, dev := range e.reg.Devices() {
		st := dev.State()
		if st.FriendlyName == target || st.Name == target {
			return dev
		}
	}
	return nil
}
