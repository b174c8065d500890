package input

// Related things to separate handlers that comes from /proc/bus/input/devices

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holoplot/go-evdev"
)

type PhysicalID string

// DeviceInfo contains information of every reported event device
// it is supposed to be created by unmarshal function only
type DeviceInfo struct {
	ID       InputID  // ID of the device
	Name     string   // name of the device
	Phys     string   // physical path to the device in the system hierarchy
	Sysfs    string   // sysfs path
	Uniq     string   // unique identification code for the device (if device has it)
	Handlers []string // list of input handles associated with the device

	// Bitmaps keyed by their label (PROP, EV, ABS...), index 0 holds the least significant long
	Bitmaps map[string][]uint64
}

func newDeviceInfo() DeviceInfo {
	return DeviceInfo{Bitmaps: make(map[string][]uint64)}
}

type InputID struct {
	Bus     uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

func (i *InputID) String() string {
	return fmt.Sprintf("0x%04x 0x%04x 0x%04x 0x%04x", i.Bus, i.Vendor, i.Product, i.Version)
}

// Event returns event name, like "event0" for /dev/input/event0
func (d *DeviceInfo) Event() string {
	for _, handler := range d.Handlers {
		if strings.HasPrefix(handler, "event") {
			return handler
		}
	}
	return ""
}

// EventPath returns a /dev/input/event filepath for reading events
func (d *DeviceInfo) EventPath() string {
	event := d.Event()
	if event == "" {
		return ""
	}
	return fmt.Sprintf("/dev/input/%s", event)
}

// has tells if given bit is set in the bitmap, longs are assumed to be of native size.
func (d *DeviceInfo) has(label string, bit int) bool {
	bitmap := d.Bitmaps[label]
	word, offset := bit/strconv.IntSize, bit%strconv.IntSize
	if word >= len(bitmap) {
		return false
	}
	return bitmap[word]&(1<<uint(offset)) != 0
}

func (d *DeviceInfo) HasProperty(prop evdev.EvProp) bool {
	return d.has("PROP", int(prop))
}

func (d *DeviceInfo) HasAbs(codes ...evdev.EvCode) bool {
	if !d.has("EV", int(evdev.EV_ABS)) {
		return false
	}
	for _, c := range codes {
		if !d.has("ABS", int(c)) {
			return false
		}
	}
	return true
}

// IsMotionSensor tells if the handler is a motion sensor reporting angular velocity,
// like the separate "Motion Sensors" handler of game controllers.
func (d *DeviceInfo) IsMotionSensor() bool {
	return d.HasProperty(evdev.INPUT_PROP_ACCELEROMETER) && d.HasAbs(evdev.ABS_RX, evdev.ABS_RY, evdev.ABS_RZ)
}

// PhysicalUUID returns unique UUID based on connection of given USB port
// The main usage is to identify groups of handlers that represent one physical device
func (d *DeviceInfo) PhysicalUUID() PhysicalID {
	phys := strings.Split(d.Phys, "/")
	return PhysicalID(phys[0])
}
