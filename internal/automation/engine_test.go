//go:build !no_automation

package automation

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jirutka/smarwi2mqtt/internal/registry"
	"github.com/jirutka/smarwi2mqtt/internal/store"

	lua "github.com/yuin/gopher-lua"
)

type nopPublisher struct {
	mu       sync.Mutex
	payloads []string
}

func (p *nopPublisher) Publish(_ context.Context, _ string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, string(payload))
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *registry.Registry, *nopPublisher) {
	t.Helper()
	db, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	reg := registry.New("90000001", db, testLogger())
	t.Cleanup(reg.Close)
	pub := &nopPublisher{}
	reg.SetPublisher(pub)

	mgr, err := NewManager(filepath.Join(t.TempDir(), "scripts"))
	if err != nil {
		t.Fatal(err)
	}
	return NewEngine(reg, mgr, testLogger()), reg, pub
}

func TestGoToLua(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name string
		val  interface{}
		want lua.LValueType
	}{
		{"nil", nil, lua.LTNil},
		{"bool", true, lua.LTBool},
		{"string", "hello", lua.LTString},
		{"int", 42, lua.LTNumber},
		{"int64", int64(99), lua.LTNumber},
		{"float64", 3.14, lua.LTNumber},
		{"map", map[string]interface{}{"a": 1}, lua.LTTable},
		{"int map", map[string]int{"vpct": 80}, lua.LTTable},
		{"slice", []interface{}{1, 2, 3}, lua.LTTable},
		{"unknown", struct{}{}, lua.LTString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := goToLua(L, tt.val)
			if result.Type() != tt.want {
				t.Errorf("goToLua(%v) type = %v, want %v", tt.val, result.Type(), tt.want)
			}
		})
	}

	// Finetune settings maps must arrive as number-valued tables.
	tbl, ok := goToLua(L, map[string]int{"vpct": 80}).(*lua.LTable)
	if !ok {
		t.Fatal("map[string]int did not convert to a table")
	}
	if v := tbl.RawGetString("vpct"); v != lua.LNumber(80) {
		t.Errorf("vpct = %v, want 80", v)
	}
}

func TestMatchesHandler(t *testing.T) {
	tests := []struct {
		name    string
		handler luaEventHandler
		evType  string
		evData  map[string]interface{}
		want    bool
	}{
		{
			"exact match",
			luaEventHandler{eventType: "property_update", device: "aabb", property: "s"},
			"property_update",
			map[string]interface{}{"device": "aabb", "property": "s"},
			true,
		},
		{
			"wrong event type",
			luaEventHandler{eventType: "property_update"},
			"availability",
			map[string]interface{}{},
			false,
		},
		{
			"device filter mismatch",
			luaEventHandler{eventType: "property_update", device: "aabb"},
			"property_update",
			map[string]interface{}{"device": "ccdd"},
			false,
		},
		{
			"property filter mismatch",
			luaEventHandler{eventType: "property_update", property: "s"},
			"property_update",
			map[string]interface{}{"property": "rssi"},
			false,
		},
		{
			"no filters match any",
			luaEventHandler{eventType: "property_update"},
			"property_update",
			map[string]interface{}{"device": "aabb", "property": "s"},
			true,
		},
		{
			"device filter only",
			luaEventHandler{eventType: "availability", device: "aabb"},
			"availability",
			map[string]interface{}{"device": "aabb", "available": true},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesHandler(tt.handler, registry.Event{
				Type: tt.evType,
				Data: tt.evData,
			})
			if got != tt.want {
				t.Errorf("matchesHandler() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunLuaCodeCapturesLogs(t *testing.T) {
	e, _, _ := newTestEngine(t)

	result := e.RunLuaCode(`smarwi.log("hello from lua")`)
	if !result.OK {
		t.Fatalf("result not OK: %s", result.Error)
	}
	if len(result.Logs) != 1 || result.Logs[0] != "hello from lua" {
		t.Errorf("logs = %v", result.Logs)
	}
}

func TestRunLuaCodeSyntaxError(t *testing.T) {
	e, _, _ := newTestEngine(t)

	result := e.RunLuaCode(`this is not lua`)
	if result.OK {
		t.Fatal("expected failure for invalid lua")
	}
	if result.Error == "" {
		t.Error("expected non-empty error")
	}
}

func TestRunLuaCodeInvokesHandlers(t *testing.T) {
	e, _, _ := newTestEngine(t)

	result := e.RunLuaCode(`
smarwi.on("property_update", {device = "aabb", property = "s"}, function(event)
	smarwi.log("handler ran: " .. event.device)
end)
`)
	if !result.OK {
		t.Fatalf("result not OK: %s", result.Error)
	}
	if len(result.Logs) != 1 || result.Logs[0] != "handler ran: aabb" {
		t.Errorf("logs = %v", result.Logs)
	}
}

func TestRunLuaCodeSandbox(t *testing.T) {
	e, _, _ := newTestEngine(t)

	for _, global := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		result := e.RunLuaCode("_x = " + global + " == nil")
		if !result.OK {
			t.Fatalf("check %s: %s", global, result.Error)
		}
	}

	// Actually using a removed global must fail.
	result := e.RunLuaCode(`os.execute("true")`)
	if result.OK {
		t.Error("expected error when calling os.execute in sandbox")
	}
}

func TestEngineScriptLifecycle(t *testing.T) {
	e, _, _ := newTestEngine(t)

	saved, err := e.manager.Save(&Script{
		Meta:    ScriptMeta{Name: "Lifecycle", Enabled: true},
		LuaCode: `smarwi.on("availability", {}, function(event) end)`,
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Start()
	defer e.Stop()

	e.mu.Lock()
	_, running := e.vms[saved.ID]
	e.mu.Unlock()
	if !running {
		t.Fatal("enabled script not started")
	}

	e.StopScript(saved.ID)
	e.mu.Lock()
	_, running = e.vms[saved.ID]
	e.mu.Unlock()
	if running {
		t.Fatal("script still running after StopScript")
	}

	if err := e.ReloadScript(saved.ID); err != nil {
		t.Fatal(err)
	}
	e.mu.Lock()
	_, running = e.vms[saved.ID]
	e.mu.Unlock()
	if !running {
		t.Fatal("script not running after ReloadScript")
	}
}

func TestEngineDisabledScriptNotStarted(t *testing.T) {
	e, _, _ := newTestEngine(t)

	saved, err := e.manager.Save(&Script{
		Meta:    ScriptMeta{Name: "Disabled", Enabled: false},
		LuaCode: `x = 1`,
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Start()
	defer e.Stop()

	e.mu.Lock()
	_, running := e.vms[saved.ID]
	e.mu.Unlock()
	if running {
		t.Fatal("disabled script should not start")
	}
}

func TestEngineNoDispatchAfterStopScript(t *testing.T) {
	e, reg, pub := newTestEngine(t)

	_, err := e.manager.Save(&Script{
		ID:   "auto_close",
		Meta: ScriptMeta{Name: "Auto close", Enabled: true},
		LuaCode: `
smarwi.on("property_update", {device = "aabbccddeeff", property = "pos"}, function(event)
	smarwi.close(event.device)
end)
`,
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Start()
	defer e.Stop()
	e.StopScript("auto_close")

	reg.HandleMessage("ion/90000001/%aabbccddeeff/status", []byte("s:250\npos:o"))
	time.Sleep(100 * time.Millisecond)

	pub.mu.Lock()
	n := len(pub.payloads)
	pub.mu.Unlock()
	if n != 0 {
		t.Fatalf("stopped script sent %d commands, want 0", n)
	}
}

func TestEngineDispatchesRegistryEvents(t *testing.T) {
	e, reg, pub := newTestEngine(t)

	// The script reacts to a window opening by closing it again.
	_, err := e.manager.Save(&Script{
		ID:      "auto_close",
		Meta:    ScriptMeta{Name: "Auto close", Enabled: true},
		LuaCode: `
smarwi.on("property_update", {device = "aabbccddeeff", property = "pos"}, function(event)
	if event.value == "o" then
		smarwi.close(event.device)
	end
end)
`,
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Start()
	defer e.Stop()

	reg.HandleMessage("ion/90000001/%aabbccddeeff/status", []byte("s:250\npos:o"))

	// The handler runs on the VM goroutine; poll for the outbound command.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		pub.mu.Lock()
		n := len(pub.payloads)
		var last string
		if n > 0 {
			last = pub.payloads[n-1]
		}
		pub.mu.Unlock()
		if n > 0 {
			if !strings.Contains(last, "close") {
				t.Fatalf("published %q, want close", last)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("script did not send close command")
}
