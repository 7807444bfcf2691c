package gadget

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/losdos/motionglove/device"
	"github.com/losdos/motionglove/device/keyboard"
	"github.com/losdos/motionglove/device/media"
	"github.com/losdos/motionglove/device/mouse"
)

// ConfigFS describes the composite gadget created under the configfs root.
type ConfigFS struct {
	Root   string `help:"configfs usb_gadget directory" default:"/sys/kernel/config/usb_gadget" env:"MOTIONGLOVE_GADGET_CONFIGFS_ROOT"`
	Name   string `help:"Gadget directory name" default:"motionglove" env:"MOTIONGLOVE_GADGET_CONFIGFS_NAME"`
	UDC    string `help:"USB device controller to bind; empty picks the first one" env:"MOTIONGLOVE_GADGET_CONFIGFS_UDC"`
	UDCDir string `help:"Directory listing the device controllers" default:"/sys/class/udc" env:"MOTIONGLOVE_GADGET_CONFIGFS_UDC_DIR"`
}

type function struct {
	name       string
	subclass   int
	protocol   int
	reportLen  int
	descriptor []byte
}

type attr struct {
	path  string
	value string
}

var functions = []function{
	{"hid.usb0", 0, 2, mouse.ReportSize, mouse.ReportDescriptor},
	{"hid.usb1", 1, 1, keyboard.ReportSize, keyboard.ReportDescriptor},
	{"hid.usb2", 0, 0, media.ReportSize, media.ReportDescriptor},
}

// Create writes the gadget with one HID function per report type and binds
// it to the device controller. The functions appear as /dev/hidg0..2 in
// that order.
func (c ConfigFS) Create() error {
	g := filepath.Join(c.Root, c.Name)
	files := []attr{
		{"idVendor", fmt.Sprintf("0x%04x", device.DefaultVendorID)},
		{"idProduct", fmt.Sprintf("0x%04x", mouse.ProductID)},
		{"bcdDevice", "0x0100"},
		{"bcdUSB", "0x0200"},
		{"strings/0x409/manufacturer", device.DefaultManufacturer},
		{"strings/0x409/product", "MotionGlove Dongle"},
		{"strings/0x409/serialnumber", device.DefaultSerial},
		{"configs/c.1/strings/0x409/configuration", "HID"},
		{"configs/c.1/MaxPower", "100"},
	}
	for _, f := range functions {
		dir := filepath.Join("functions", f.name)
		files = append(files,
			attr{filepath.Join(dir, "subclass"), fmt.Sprint(f.subclass)},
			attr{filepath.Join(dir, "protocol"), fmt.Sprint(f.protocol)},
			attr{filepath.Join(dir, "report_length"), fmt.Sprint(f.reportLen)},
			attr{filepath.Join(dir, "report_desc"), string(f.descriptor)},
		)
	}
	for _, f := range files {
		if err := writeAttr(filepath.Join(g, f.path), f.value); err != nil {
			return err
		}
	}
	for _, f := range functions {
		link := filepath.Join(g, "configs/c.1", f.name)
		if _, err := os.Lstat(link); err == nil {
			continue
		}
		if err := os.Symlink(filepath.Join(g, "functions", f.name), link); err != nil {
			return fmt.Errorf("link %s: %w", f.name, err)
		}
	}

	udc := c.UDC
	if udc == "" {
		entries, err := os.ReadDir(c.UDCDir)
		if err != nil || len(entries) == 0 {
			return fmt.Errorf("no USB device controller found in %s", c.UDCDir)
		}
		udc = entries[0].Name()
	}
	return writeAttr(filepath.Join(g, "UDC"), udc)
}

// Remove unbinds the gadget. The configfs tree is left in place.
func (c ConfigFS) Remove() error {
	err := os.WriteFile(filepath.Join(c.Root, c.Name, "UDC"), []byte("\n"), 0o644)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unbind gadget: %w", err)
	}
	return nil
}

func writeAttr(path, value string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if !strings.HasSuffix(value, "\n") && !strings.HasSuffix(path, "report_desc") {
		value += "\n"
	}
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
