package smarwi

import "testing"

const sampleStatus = "t:swr\nc:status\nfw:3.4.1-15-g3d0f\ncid:Kitchen\nrssi:-62\ntime:123\ns:250\ne:0\nok:1\nro:0\npos:c\nfix:0\nip:16951488\ncc:0\nlast:close\nlcc:5"

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(sampleStatus)
	if err != nil {
		t.Fatal(err)
	}

	if st.Name() != "Kitchen" {
		t.Errorf("name = %q, want Kitchen", st.Name())
	}
	if st.FWVersion() != "3.4.1-15-g3d0f" {
		t.Errorf("fw = %q, want 3.4.1-15-g3d0f", st.FWVersion())
	}
	if got := st.IPAddress(); got != "192.168.2.1" {
		t.Errorf("ip = %q, want 192.168.2.1", got)
	}
	if closed, ok := st.Closed(); !ok || !closed {
		t.Errorf("closed = %v/%v, want true/true", closed, ok)
	}
	if st.RidgeFixed() {
		t.Error("ridge_fixed = true, want false")
	}
	if !st.RidgeInside() {
		t.Error("ridge_inside = false, want true")
	}
	if rssi, ok := st.RSSI(); !ok || rssi != -62 {
		t.Errorf("rssi = %d/%v, want -62/true", rssi, ok)
	}
	if st.StateCode() != StateIdle {
		t.Errorf("state = %v, want IDLE", st.StateCode())
	}
}

func TestParseStatusDropsUnknownKeys(t *testing.T) {
	st, err := ParseStatus(sampleStatus)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st[StatusKey("lcc")]; ok {
		t.Error("unknown key lcc should be dropped")
	}
	if _, ok := st[StatusKey("t")]; ok {
		t.Error("unknown key t should be dropped")
	}
}

func TestStatusMissingFields(t *testing.T) {
	st, err := ParseStatus("cid:Bare")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.Closed(); ok {
		t.Error("closed should not be reported")
	}
	if _, ok := st.RSSI(); ok {
		t.Error("rssi should not be reported")
	}
	if st.IPAddress() != "" {
		t.Errorf("ip = %q, want empty", st.IPAddress())
	}
	if st.StateCode() != StateUnknown {
		t.Errorf("state = %v, want UNKNOWN", st.StateCode())
	}
}

func TestChangedKeys(t *testing.T) {
	prev, err := ParseStatus("s:250\npos:c\nrssi:-60\nfix:0")
	if err != nil {
		t.Fatal(err)
	}
	next, err := ParseStatus("s:210\npos:o\nrssi:-60\nfix:0")
	if err != nil {
		t.Fatal(err)
	}

	changed := next.ChangedKeys(prev)
	want := map[StatusKey]bool{KeyClosed: true, KeyStateCode: true}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want 2 keys", changed)
	}
	for _, k := range changed {
		if !want[k] {
			t.Errorf("unexpected changed key %q", k)
		}
	}
}

func TestChangedKeysAgainstEmpty(t *testing.T) {
	st, err := ParseStatus("s:250\npos:c")
	if err != nil {
		t.Fatal(err)
	}
	changed := st.ChangedKeys(Status{})
	if len(changed) != 2 {
		t.Errorf("changed = %v, want 2 keys", changed)
	}
}
