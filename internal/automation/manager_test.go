//go:build !no_automation

package automation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scripts")
	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestManagerListEmpty(t *testing.T) {
	m := newTestManager(t)
	scripts, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(scripts) != 0 {
		t.Errorf("list count = %d, want 0", len(scripts))
	}
}

func TestManagerSaveAndGet(t *testing.T) {
	m := newTestManager(t)

	s := &Script{
		Meta: ScriptMeta{
			Name:        "Close At Night",
			Description: "Closes the window every evening",
			Enabled:     true,
		},
		LuaCode: `smarwi.close("aabbccddeeff")`,
	}

	saved, err := m.Save(s)
	if err != nil {
		t.Fatal(err)
	}

	if saved.ID != "close_at_night" {
		t.Errorf("id = %q, want close_at_night", saved.ID)
	}

	got, err := m.Get(saved.ID)
	if err != nil {
		t.Fatal(err)
	}

	if got.Meta.Name != "Close At Night" {
		t.Errorf("name = %q", got.Meta.Name)
	}
	if got.Meta.Description != "Closes the window every evening" {
		t.Errorf("description = %q", got.Meta.Description)
	}
	if !got.Meta.Enabled {
		t.Error("enabled = false, want true")
	}
	if !strings.Contains(got.LuaCode, `smarwi.close("aabbccddeeff")`) {
		t.Errorf("lua_code = %q", got.LuaCode)
	}
}

func TestManagerSaveGeneratesUniqueIDs(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Save(&Script{Meta: ScriptMeta{Name: "My Script"}})
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Save(&Script{Meta: ScriptMeta{Name: "My Script"}})
	if err != nil {
		t.Fatal(err)
	}

	if first.ID != "my_script" {
		t.Errorf("first id = %q", first.ID)
	}
	if second.ID == first.ID {
		t.Errorf("second id = %q, want unique", second.ID)
	}
}

func TestManagerDelete(t *testing.T) {
	m := newTestManager(t)

	saved, err := m.Save(&Script{Meta: ScriptMeta{Name: "Doomed"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(saved.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(saved.ID); err == nil {
		t.Fatal("expected error after delete, got nil")
	}
}

func TestManagerDeleteInvalidID(t *testing.T) {
	m := newTestManager(t)
	for _, id := range []string{"", ".", "..", "a/b", `a\b`, "../../etc/passwd"} {
		if err := m.Delete(id); err == nil {
			t.Errorf("Delete(%q): expected error", id)
		}
		if _, err := m.Get(id); err == nil {
			t.Errorf("Get(%q): expected error", id)
		}
	}
}

func TestManagerListSkipsMalformed(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Save(&Script{Meta: ScriptMeta{Name: "Good"}, LuaCode: "x = 1"}); err != nil {
		t.Fatal(err)
	}
	// Non-lua files are ignored.
	if err := os.WriteFile(filepath.Join(m.dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	scripts, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(scripts) != 1 {
		t.Errorf("list count = %d, want 1", len(scripts))
	}
}

func TestScriptFileFormat(t *testing.T) {
	m := newTestManager(t)

	saved, err := m.Save(&Script{
		Meta:    ScriptMeta{Name: "Format", Enabled: true},
		LuaCode: "x = 1",
	})
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(saved.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, `-- {"name":"Format"`) {
		t.Errorf("file does not start with metadata line: %q", content)
	}
	if !strings.Contains(content, "x = 1") {
		t.Errorf("file missing lua code: %q", content)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Script", "my_script"},
		{"  Trim Me  ", "trim_me"},
		{"Weird!!Chars##", "weird_chars"},
		{"", ""},
		{"UPPER", "upper"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
