package smarwi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// Finetune setting keys, exposed by SMARWI on its HTTP interface.
const (
	FinetuneMaxOpenPosition    = "vpct"   // maximum open position
	FinetuneMoveSpeed          = "ospd"   // movement speed
	FinetuneFrameSpeed         = "ofspd"  // near frame speed
	FinetuneMovePower          = "orpwr"  // movement power
	FinetuneFramePower         = "ofpwr"  // near frame power
	FinetuneClosedHoldPower    = "ohcpwr" // closed holding power
	FinetuneOpenedHoldPower    = "ohopwr" // opened holding power
	FinetuneClosedPosition     = "hdist"  // window closed position finetune
	FinetuneLockErrTrigger     = "lwid"   // "window locked" error trigger
	FinetuneCalibratedDistance = "cfdist" // calibrated distance
)

// finetuneReadOnlyKey is reported by the device but cannot be written back.
const finetuneReadOnlyKey = "cvdist"

// FinetuneSpec describes the value range of one finetune setting, used for
// building Home Assistant number entities.
type FinetuneSpec struct {
	Key      string
	Min      int
	Max      int
	Unit     string
	BoxMode  bool
	Disabled bool // not enabled by default in Home Assistant
}

// FinetuneSpecs lists all writable finetune settings in a stable order.
func FinetuneSpecs() []FinetuneSpec {
	return []FinetuneSpec{
		{Key: FinetuneMaxOpenPosition, Min: 0, Max: 100, Unit: "%"},
		{Key: FinetuneMoveSpeed, Min: 0, Max: 100, Unit: "%"},
		{Key: FinetuneFrameSpeed, Min: 0, Max: 100, Unit: "%"},
		{Key: FinetuneMovePower, Min: 0, Max: 100, Unit: "%"},
		{Key: FinetuneFramePower, Min: 0, Max: 100, Unit: "%"},
		{Key: FinetuneClosedHoldPower, Min: 0, Max: 100, Unit: "%"},
		{Key: FinetuneOpenedHoldPower, Min: 0, Max: 100, Unit: "%"},
		{Key: FinetuneClosedPosition, Min: -20, Max: 20},
		{Key: FinetuneLockErrTrigger, Min: 0, Max: 40},
		{Key: FinetuneCalibratedDistance, Min: 0, Max: 65535, BoxMode: true, Disabled: true},
	}
}

// IsFinetuneKey reports whether key names a writable finetune setting.
func IsFinetuneKey(key string) bool {
	for _, spec := range FinetuneSpecs() {
		if spec.Key == key {
			return true
		}
	}
	return false
}

// FinetuneClient talks to the SMARWI HTTP interface on the local network.
// Reading uses GET /lcfa, writing uses a multipart POST to /scfa with the
// full settings map (the firmware replaces the whole set at once).
type FinetuneClient struct {
	http   *http.Client
	logger *slog.Logger
}

// NewFinetuneClient creates a client with the given request timeout.
func NewFinetuneClient(timeout time.Duration, logger *slog.Logger) *FinetuneClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FinetuneClient{
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", "finetune"),
	}
}

// Load fetches the finetune settings from the device at host. The read-only
// cvdist key is stripped.
func (c *FinetuneClient) Load(ctx context.Context, host string) (map[string]int, error) {
	body, err := c.get(ctx, host, "lcfa")
	if err != nil {
		return nil, err
	}

	raw, err := DecodeKeyval(body)
	if err != nil {
		return nil, fmt.Errorf("decode finetune settings: %w", err)
	}

	settings := make(map[string]int, len(raw))
	for k, v := range raw {
		if k == finetuneReadOnlyKey {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("finetune setting %s: %w", k, err)
		}
		settings[k] = n
	}
	return settings, nil
}

// Store writes the full settings map to the device at host.
func (c *FinetuneClient) Store(ctx context.Context, host string, settings map[string]int) error {
	data := make(map[string]string, len(settings))
	for k, v := range settings {
		data[k] = strconv.Itoa(v)
	}
	return c.postData(ctx, host, "scfa", EncodeKeyval(data))
}

func (c *FinetuneClient) get(ctx context.Context, host, path string) (string, error) {
	url := fmt.Sprintf("http://%s/%s", host, path)
	c.logger.Debug("sending GET", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("GET %s: read body: %w", url, err)
	}
	return string(body), nil
}

// postData sends a multipart form-data POST in the exact shape the SMARWI
// firmware expects: a single field named "data" with filename "/afile".
func (c *FinetuneClient) postData(ctx context.Context, host, path, data string) error {
	var body strings.Builder
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="data"; filename="/afile"`)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := part.Write([]byte(data)); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/%s", host, path)
	c.logger.Debug("sending POST", "url", url, "data", data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body.String()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST %s: HTTP %d", url, resp.StatusCode)
	}
	return nil
}
