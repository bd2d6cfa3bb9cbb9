package audiofx

import "github.com/zoobzio/capitan"

// Session lifecycle signals.
var (
	SessionAttached = capitan.NewSignal(
		"audiofx.session.attached",
		"Effect chain created for a session",
	)

	SessionReactivated = capitan.NewSignal(
		"audiofx.session.reactivated",
		"Closed session reopened before its removal delay elapsed",
	)

	SessionReleased = capitan.NewSignal(
		"audiofx.session.released",
		"Effect chain released after the removal delay",
	)

	HandleCreationFailed = capitan.NewSignal(
		"audiofx.session.create.failed",
		"Effect engine could not create a chain for a session",
	)
)

// Backend and device signals.
var (
	BackendUpdateFailed = capitan.NewSignal(
		"audiofx.backend.update.failed",
		"Backend transaction failed",
	)

	OutputDeviceChanged = capitan.NewSignal(
		"audiofx.output.changed",
		"Audio output device changed",
	)

	DefaultsInitialized = capitan.NewSignal(
		"audiofx.defaults.initialized",
		"Default preferences were written",
	)
)

var (
	KeySessionID = capitan.NewIntKey("session_id")
	KeyDeviceID  = capitan.NewIntKey("device_id")
	KeyIdentity  = capitan.NewStringKey("identity")
	KeyFlags     = capitan.NewStringKey("flags")
	KeyError     = capitan.NewStringKey("error")
	KeyBrand     = capitan.NewStringKey("brand")
)
