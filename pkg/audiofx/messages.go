package audiofx

import "github.com/nicksnyder/go-i18n/v2/i18n"

var (
	msgConfigInvalidTitle = &i18n.Message{
		ID:    "ConfigInvalidTitle",
		Other: "Invalid configuration!",
	}
	msgConfigInvalidBody = &i18n.Message{
		ID:    "ConfigInvalidBody",
		Other: "Please make sure config.yaml is in the correct format.",
	}
	msgConfigReloadedTitle = &i18n.Message{
		ID:    "ConfigReloadedTitle",
		Other: "Configuration reloaded!",
	}
	msgConfigReloadedBody = &i18n.Message{
		ID:    "ConfigReloadedBody",
		Other: "Your changes have been applied.",
	}
	msgDeviceChangedTitle = &i18n.Message{
		ID:    "DeviceChangedTitle",
		Other: "Audio output changed",
	}
	msgDeviceChangedBody = &i18n.Message{
		ID:    "DeviceChangedBody",
		Other: "Now using effects profile for {{.Name}}",
	}
	msgDefaultsFailedTitle = &i18n.Message{
		ID:    "DefaultsFailedTitle",
		Other: "Audio effects unavailable",
	}
	msgDefaultsFailedBody = &i18n.Message{
		ID:    "DefaultsFailedBody",
		Other: "The effects backend could not report its capabilities.",
	}

	// display names for device types
	msgDeviceSpeaker = &i18n.Message{
		ID:    "DeviceSpeaker",
		Other: "Speaker",
	}
	msgDeviceHeadset = &i18n.Message{
		ID:    "DeviceHeadset",
		Other: "Headset",
	}
	msgDeviceLineOut = &i18n.Message{
		ID:    "DeviceLineOut",
		Other: "Line out",
	}
	msgDeviceUSB = &i18n.Message{
		ID:    "DeviceUSB",
		Other: "USB audio",
	}
	msgDeviceBluetooth = &i18n.Message{
		ID:    "DeviceBluetooth",
		Other: "Bluetooth",
	}
	msgDeviceWireless = &i18n.Message{
		ID:    "DeviceWireless",
		Other: "Wireless display",
	}
	msgDeviceHDMI = &i18n.Message{
		ID:    "DeviceHDMI",
		Other: "HDMI",
	}
	msgDeviceUnknown = &i18n.Message{
		ID:    "DeviceUnknown",
		Other: "Unknown output",
	}
)
