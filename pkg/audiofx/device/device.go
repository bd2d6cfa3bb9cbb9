// Package device describes audio output devices and maps them to the stable
// identity strings used to select per-device preferences.
package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Type is the kind of physical output a device represents
type Type int

const (
	TypeUnknown Type = iota
	TypeBuiltinSpeaker
	TypeWiredHeadset
	TypeWiredHeadphones
	TypeLineAnalog
	TypeLineDigital
	TypeBluetoothSCO
	TypeBluetoothA2DP
	TypeUSBDevice
	TypeUSBAccessory
	TypeDock
	TypeIP
	TypeHDMI
)

const (
	IdentitySpeaker   = "speaker"
	IdentityHeadset   = "headset"
	IdentityLineout   = "lineout"
	IdentityBluetooth = "bluetooth"
	IdentityUSB       = "usb"
	IdentityWireless  = "wireless"
)

var typeNames = map[Type]string{
	TypeUnknown:         "unknown",
	TypeBuiltinSpeaker:  "builtin_speaker",
	TypeWiredHeadset:    "wired_headset",
	TypeWiredHeadphones: "wired_headphones",
	TypeLineAnalog:      "line_analog",
	TypeLineDigital:     "line_digital",
	TypeBluetoothSCO:    "bluetooth_sco",
	TypeBluetoothA2DP:   "bluetooth_a2dp",
	TypeUSBDevice:       "usb_device",
	TypeUSBAccessory:    "usb_accessory",
	TypeDock:            "dock",
	TypeIP:              "ip",
	TypeHDMI:            "hdmi",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Info is a snapshot of one output device as reported by a device source
type Info struct {
	ID          int
	Type        Type
	Address     string
	ProductName string
}

func (i *Info) String() string {
	if i == nil {
		return "<no device>"
	}
	return fmt.Sprintf("<device %d %s %q>", i.ID, i.Type, i.ProductName)
}

// Equal reports whether both snapshots describe the same device
func (i *Info) Equal(other *Info) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.ID == other.ID && Identity(i) == Identity(other)
}

var nonWord = regexp.MustCompile(`\W+`)

// Identity returns the preference bucket key for the given device.
//
//	nil, builtin speaker, HDMI, unknown   -> "speaker"
//	wired headset / headphones            -> "headset"
//	analog / digital line out             -> "lineout"
//	bluetooth with address "AA:BB"        -> "bluetooth-AABB"
//	bluetooth without an address          -> "bluetooth"
//	USB device "Fancy DAC 2.0"            -> "usb-FancyDAC20"
//	IP device "Living Room"               -> "wireless-LivingRoom"
func Identity(info *Info) string {
	if info == nil {
		return IdentitySpeaker
	}

	switch info.Type {
	case TypeWiredHeadset, TypeWiredHeadphones:
		return IdentityHeadset
	case TypeLineAnalog, TypeLineDigital:
		return IdentityLineout
	case TypeBluetoothSCO, TypeBluetoothA2DP:
		return withSuffix(IdentityBluetooth, strings.ReplaceAll(info.Address, ":", ""))
	case TypeUSBDevice, TypeUSBAccessory, TypeDock:
		return withSuffix(IdentityUSB, nonWord.ReplaceAllString(info.ProductName, ""))
	case TypeIP:
		return withSuffix(IdentityWireless, nonWord.ReplaceAllString(info.ProductName, ""))
	}

	return IdentitySpeaker
}

func withSuffix(prefix, suffix string) string {
	if suffix == "" {
		return prefix
	}
	return prefix + "-" + suffix
}
