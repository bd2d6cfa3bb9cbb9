package device

import "strings"

// Hints is what a platform audio API tells us about an output endpoint.
// All fields are optional.
type Hints struct {
	ID          int
	Bus         string // "bluetooth", "usb", "pci", "network"...
	FormFactor  string // "headset", "headphone", "speaker", "internal"...
	Profile     string // active card profile or port name
	Address     string
	ProductName string
	Description string
}

var bluetoothCallProfiles = []string{"headset_head_unit", "handsfree", "hfp", "hsp"}

// Classify turns platform hints into a device snapshot. The bus is checked
// before the form factor, so a USB headset is a USB device.
func Classify(h Hints) Info {
	info := Info{
		ID:          h.ID,
		Address:     h.Address,
		ProductName: h.ProductName,
	}
	if info.ProductName == "" {
		info.ProductName = h.Description
	}

	bus := strings.ToLower(h.Bus)
	formFactor := strings.ToLower(h.FormFactor)
	profile := strings.ToLower(h.Profile)
	text := strings.ToLower(h.ProductName + " " + h.Description + " " + h.Profile)

	switch {
	case bus == "bluetooth" || strings.Contains(text, "bluetooth"):
		info.Type = TypeBluetoothA2DP
		if containsAny(profile, bluetoothCallProfiles) {
			info.Type = TypeBluetoothSCO
		}
	case bus == "usb":
		info.Type = TypeUSBDevice
	case bus == "network" || strings.Contains(text, "airplay") || strings.Contains(text, "chromecast"):
		info.Type = TypeIP
	case strings.Contains(text, "hdmi") || strings.Contains(text, "displayport"):
		info.Type = TypeHDMI
	case formFactor == "headset":
		info.Type = TypeWiredHeadset
	case formFactor == "headphone" || strings.Contains(text, "headphone"):
		info.Type = TypeWiredHeadphones
	case strings.Contains(text, "spdif") || strings.Contains(text, "iec958") || strings.Contains(text, "optical"):
		info.Type = TypeLineDigital
	case strings.Contains(text, "line out") || strings.Contains(text, "lineout"):
		info.Type = TypeLineAnalog
	case formFactor == "speaker" || formFactor == "internal" || strings.Contains(text, "speaker"):
		info.Type = TypeBuiltinSpeaker
	default:
		info.Type = TypeUnknown
	}

	return info
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
