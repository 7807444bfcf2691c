package gadget

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losdos/motionglove/device/keyboard"
	"github.com/losdos/motionglove/device/media"
	"github.com/losdos/motionglove/device/mouse"
)

func tempDevices(t *testing.T) Config {
	dir := t.TempDir()
	cfg := Config{
		MouseDev:     filepath.Join(dir, "hidg0"),
		KeyboardDev:  filepath.Join(dir, "hidg1"),
		MediaDev:     filepath.Join(dir, "hidg2"),
		WriteTimeout: 5 * time.Millisecond,
	}
	for _, p := range []string{cfg.MouseDev, cfg.KeyboardDev, cfg.MediaDev} {
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}
	return cfg
}

func TestSinkWritesReportBytes(t *testing.T) {
	cfg := tempDevices(t)
	s, err := Open(cfg)
	require.NoError(t, err)

	require.NoError(t, s.WriteMouse(mouse.Report{Buttons: mouse.BtnRight, X: -1, Y: 2, Wheel: 3, Pan: -4}))
	require.NoError(t, s.WriteKeyboard(keyboard.Press(0x02, 0x04, 0x05)))
	require.NoError(t, s.WriteKeyboard(keyboard.Release))
	require.NoError(t, s.WriteMedia(media.Report{UsageID: media.UsageVolumeDown}))
	require.NoError(t, s.Close())

	got, err := os.ReadFile(cfg.MouseDev)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0xFF, 0x02, 0x03, 0xFC}, got)

	got, err = os.ReadFile(cfg.KeyboardDev)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0, 0x04, 0x05, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, got)

	got, err = os.ReadFile(cfg.MediaDev)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEA, 0x00}, got)
}

func TestOpenMissingDevice(t *testing.T) {
	cfg := tempDevices(t)
	cfg.MediaDev = filepath.Join(t.TempDir(), "missing")
	_, err := Open(cfg)
	assert.Error(t, err)
}

func TestWriteTimeoutOnStalledHost(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	s := NewSink(w, w, w, 5*time.Millisecond)
	var werr error
	for range 100000 {
		if werr = s.WriteMouse(mouse.Report{X: 1}); werr != nil {
			break
		}
	}
	assert.ErrorIs(t, werr, os.ErrDeadlineExceeded)
	_ = w.Close()
}

func TestConfigFSCreate(t *testing.T) {
	root := t.TempDir()
	c := ConfigFS{Root: root, Name: "mg", UDCDir: filepath.Join(root, "udc")}
	require.NoError(t, os.MkdirAll(filepath.Join(c.UDCDir, "fe980000.usb"), 0o755))

	require.NoError(t, c.Create())
	g := filepath.Join(root, "mg")

	b, err := os.ReadFile(filepath.Join(g, "UDC"))
	require.NoError(t, err)
	assert.Equal(t, "fe980000.usb\n", string(b))

	b, err = os.ReadFile(filepath.Join(g, "functions/hid.usb1/report_desc"))
	require.NoError(t, err)
	assert.Equal(t, keyboard.ReportDescriptor, b)

	b, err = os.ReadFile(filepath.Join(g, "functions/hid.usb2/report_length"))
	require.NoError(t, err)
	assert.Equal(t, "2\n", string(b))

	target, err := os.Readlink(filepath.Join(g, "configs/c.1/hid.usb0"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(g, "functions/hid.usb0"), target)

	require.NoError(t, c.Create(), "re-running keeps existing links")
	require.NoError(t, c.Remove())
}

func TestConfigFSNoController(t *testing.T) {
	root := t.TempDir()
	c := ConfigFS{Root: root, Name: "mg", UDCDir: filepath.Join(root, "none")}
	assert.ErrorContains(t, c.Create(), "no USB device controller")
}
