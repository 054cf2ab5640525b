//go:build !no_automation

package automation

import (
	"testing"
	"time"
)

func seedDevice(t *testing.T, e *Engine, id string) {
	t.Helper()
	e.reg.HandleMessage("ion/90000001/%"+id+"/online", []byte("1"))
	e.reg.HandleMessage("ion/90000001/%"+id+"/status",
		[]byte("cid:Kitchen\nfw:3.4.1\ns:250\npos:c\nfix:0\nro:0\nrssi:-60"))
}

func TestSmarwiDevices(t *testing.T) {
	e, _, _ := newTestEngine(t)
	seedDevice(t, e, "aabbccddeeff")

	result := e.RunLuaCode(`
local d = smarwi.devices()
smarwi.log(d[1].id .. " " .. d[1].name .. " " .. d[1].cover_state)
`)
	if !result.OK {
		t.Fatalf("result not OK: %s", result.Error)
	}
	if len(result.Logs) != 1 || result.Logs[0] != "aabbccddeeff Kitchen closed" {
		t.Errorf("logs = %v", result.Logs)
	}
}

func TestSmarwiGetState(t *testing.T) {
	e, _, _ := newTestEngine(t)
	seedDevice(t, e, "aabbccddeeff")

	tests := []struct {
		field string
		want  string
	}{
		{"available", "true"},
		{"closed", "true"},
		{"ridge_fixed", "false"},
		{"rssi", "-60"},
		{"cover_state", "closed"},
		{"fw_version", "3.4.1"},
		{"nonsense", "nil"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			result := e.RunLuaCode(
				`smarwi.log(tostring(smarwi.get_state("aabbccddeeff", "` + tt.field + `")))`)
			if !result.OK {
				t.Fatalf("result not OK: %s", result.Error)
			}
			if len(result.Logs) != 1 || result.Logs[0] != tt.want {
				t.Errorf("logs = %v, want [%s]", result.Logs, tt.want)
			}
		})
	}
}

func TestSmarwiGetStateUnknownDevice(t *testing.T) {
	e, _, _ := newTestEngine(t)

	result := e.RunLuaCode(`smarwi.log(tostring(smarwi.get_state("missing", "available")))`)
	if !result.OK {
		t.Fatalf("result not OK: %s", result.Error)
	}
	if len(result.Logs) != 1 || result.Logs[0] != "nil" {
		t.Errorf("logs = %v", result.Logs)
	}
}

func TestSmarwiOpenByFriendlyName(t *testing.T) {
	e, reg, pub := newTestEngine(t)
	seedDevice(t, e, "aabbccddeeff")
	reg.Device("aabbccddeeff").SetFriendlyName("Kitchen window")

	result := e.RunLuaCode(`smarwi.open("Kitchen window", 50)`)
	if !result.OK {
		t.Fatalf("result not OK: %s", result.Error)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if n := len(pub.payloads); n == 0 || pub.payloads[n-1] != "open;50" {
		t.Errorf("payloads = %v, want open;50", pub.payloads)
	}
}

func TestSmarwiOpenDefaultPosition(t *testing.T) {
	e, _, pub := newTestEngine(t)
	seedDevice(t, e, "aabbccddeeff")

	result := e.RunLuaCode(`smarwi.open("aabbccddeeff")`)
	if !result.OK {
		t.Fatalf("result not OK: %s", result.Error)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if n := len(pub.payloads); n == 0 || pub.payloads[n-1] != "open;100" {
		t.Errorf("payloads = %v, want open;100", pub.payloads)
	}
}

func TestSmarwiSleep(t *testing.T) {
	e, _, _ := newTestEngine(t)

	start := time.Now()
	result := e.RunLuaCode(`
smarwi.sleep(50)
smarwi.log("awake")
`)
	if !result.OK {
		t.Fatalf("result not OK: %s", result.Error)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("sleep returned after %v, want >= 50ms", elapsed)
	}
	if len(result.Logs) != 1 || result.Logs[0] != "awake" {
		t.Errorf("logs = %v", result.Logs)
	}
}

func TestSmarwiOnTooManyHandlers(t *testing.T) {
	e, _, _ := newTestEngine(t)

	result := e.RunLuaCode(`
for i = 1, 101 do
	smarwi.on("availability", {}, function(event) end)
end
`)
	if result.OK {
		t.Fatal("expected error when registering over the handler limit")
	}
}
