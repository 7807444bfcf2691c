package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	toml "github.com/pelletier/go-toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"
)

func TestKebab(t *testing.T) {
	for in, want := range map[string]string{
		"ListenAddr":  "listen-addr",
		"ClientID":    "client-id",
		"SSID":        "ssid",
		"PollMS":      "poll-ms",
		"UDCDir":      "udc-dir",
		"ADCAddress":  "adc-address",
		"ReadFreq":    "read-freq",
		"Nmcli":       "nmcli",
		"AllReports":  "all-reports",
		"SPIDevice":   "spi-device",
		"Reassociate": "reassociate",
	} {
		assert.Equal(t, want, kebab(in), in)
	}
}

func TestRenderJSON(t *testing.T) {
	data, err := Render("glove", "json")
	require.NoError(t, err)

	var root map[string]any
	require.NoError(t, json.Unmarshal(data, &root))
	link := root["link"].(map[string]any)
	assert.Equal(t, "192.168.0.10:50124", link["dongle_addr"])
	assert.Equal(t, "15s", link["socket_timeout"])
	assert.Equal(t, float64(1), link["queue_size"])

	hw := root["hw"].(map[string]any)
	assert.Equal(t, "periph", hw["backend"])
	assert.Equal(t, "/dev/ttyACM0", hw["serial"].(map[string]any)["port"])
	assert.Equal(t, "GPIO17", hw["tap_pin"])

	wifi := root["wifi"].(map[string]any)
	assert.Equal(t, true, wifi["join"])
	assert.Equal(t, "MotionGlove-Network", wifi["ssid"])

	assert.Equal(t, float64(900), root["filter"].(map[string]any)["sup_band"])
	assert.Equal(t, float64(20), root["gesture"].(map[string]any)["padding_freq"])
}

func TestRenderYAML(t *testing.T) {
	data, err := Render("dongle", "yml")
	require.NoError(t, err)

	var root map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(data, &root))
	d := root["dongle"]
	require.NotNil(t, d)
	assert.Equal(t, ":50124", d["link.listen-addr"])
	assert.Equal(t, "gadget", d["hid.sink"])
	assert.Equal(t, "/dev/hidg0", d["gadget.mouse-dev"])
	assert.Equal(t, "/sys/kernel/config/usb_gadget", d["gadget.configfs.root"])
	assert.Equal(t, ":3241", d["usbip.addr"])
	assert.Equal(t, false, d["wifi.access-point"])
}

func TestRenderTOML(t *testing.T) {
	data, err := Render("monitor", "toml")
	require.NoError(t, err)

	tree, err := toml.LoadBytes(data)
	require.NoError(t, err)
	m := tree.ToMap()["monitor"].(map[string]any)
	assert.Equal(t, "motionglove", m["telemetry.prefix"])
	assert.Equal(t, "100ms", m["telemetry.interval"])
	assert.Equal(t, false, m["json"])
}

func TestRenderUnknown(t *testing.T) {
	_, err := Render("server", "json")
	assert.Error(t, err)
	_, err = Render("glove", "ini")
	assert.Error(t, err)
}

func TestConfigInitWritesFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "glove.yaml")
	c := ConfigInit{Command: "glove", Format: "yaml", Output: dest}
	require.NoError(t, c.Run())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "link.dongle-addr")

	assert.Error(t, c.Run(), "existing file is kept without --force")
	c.Force = true
	assert.NoError(t, c.Run())
}
