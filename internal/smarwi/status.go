package smarwi

import "strconv"

// StatusKey identifies a property reported on the status topic.
type StatusKey string

// Status fields reported by SMARWI firmware.
const (
	KeyName        StatusKey = "cid"  // device name configured in SMARWI settings
	KeyRidgeFixed  StatusKey = "fix"  // "1" when the ridge is fixed
	KeyFWVersion   StatusKey = "fw"   // firmware version
	KeyIPAddress   StatusKey = "ip"   // IPv4 as 32-bit little-endian decimal
	KeyClosed      StatusKey = "pos"  // "c" closed, "o" open
	KeyRidgeInside StatusKey = "ro"   // "0" when the ridge is inside the device
	KeyRSSI        StatusKey = "rssi" // WiFi signal strength
	KeyStateCode   StatusKey = "s"    // numeric state code
)

var statusKeys = []StatusKey{
	KeyName, KeyRidgeFixed, KeyFWVersion, KeyIPAddress,
	KeyClosed, KeyRidgeInside, KeyRSSI, KeyStateCode,
}

// Status is a snapshot of the properties a SMARWI reports on its status topic.
type Status map[StatusKey]string

// ParseStatus decodes a status topic payload. Unknown keys are dropped.
func ParseStatus(payload string) (Status, error) {
	raw, err := DecodeKeyval(payload)
	if err != nil {
		return nil, err
	}
	st := make(Status, len(raw))
	for _, key := range statusKeys {
		if v, ok := raw[string(key)]; ok {
			st[key] = v
		}
	}
	return st, nil
}

// ChangedKeys returns the status keys whose value differs between s and prev.
func (s Status) ChangedKeys(prev Status) []StatusKey {
	var changed []StatusKey
	for _, key := range statusKeys {
		if s[key] != prev[key] {
			changed = append(changed, key)
		}
	}
	return changed
}

// Name returns the device name configured in the SMARWI settings.
func (s Status) Name() string { return s[KeyName] }

// FWVersion returns the firmware version.
func (s Status) FWVersion() string { return s[KeyFWVersion] }

// IPAddress returns the dotted-decimal IPv4 address, or "" if not reported.
func (s Status) IPAddress() string {
	raw, ok := s[KeyIPAddress]
	if !ok {
		return ""
	}
	packed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return ""
	}
	return ParseIPv4LE(uint32(packed))
}

// Closed reports whether the window is closed. The second return value is
// false when the position has not been reported yet.
func (s Status) Closed() (bool, bool) {
	v, ok := s[KeyClosed]
	return v == "c", ok
}

// RidgeFixed reports whether the ridge is fixed, i.e. the window cannot be
// moved by hand.
func (s Status) RidgeFixed() bool { return s[KeyRidgeFixed] == "1" }

// RidgeInside reports whether the ridge is inside the device, i.e. the window
// can be controlled.
func (s Status) RidgeInside() bool { return s[KeyRidgeInside] == "0" }

// RSSI returns the WiFi signal strength. The second return value is false
// when it has not been reported.
func (s Status) RSSI() (int, bool) {
	raw, ok := s[KeyRSSI]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// StateCode returns the parsed state code, StateUnknown when missing or
// unparsable.
func (s Status) StateCode() StateCode {
	n, err := strconv.Atoi(s[KeyStateCode])
	if err != nil {
		return StateUnknown
	}
	return StateCodeOf(n)
}
