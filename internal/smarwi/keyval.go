package smarwi

import (
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"strings"
)

// DecodeKeyval parses the key:value line format used by SMARWI on the status
// MQTT topic and the finetune HTTP endpoints. Values may contain colons; only
// the first colon on each line separates the key. Blank lines are skipped.
func DecodeKeyval(payload string) (map[string]string, error) {
	out := make(map[string]string)
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed key:value line: %q", line)
		}
		out[key] = value
	}
	return out, nil
}

// EncodeKeyval encodes a map in the key:value line format expected by SMARWI.
// Keys are sorted so the output is deterministic.
func EncodeKeyval(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(data[k])
	}
	return b.String()
}

// ParseIPv4LE converts an IPv4 address packed as a 32-bit little-endian number
// (the SMARWI "ip" status field) to dotted-decimal notation.
func ParseIPv4LE(packed uint32) string {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], packed)
	return net.IP(buf[:]).String()
}
