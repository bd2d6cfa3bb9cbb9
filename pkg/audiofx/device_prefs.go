package audiofx

import (
	"context"
	"fmt"
	"strings"

	"github.com/thoas/go-funk"
	"github.com/zoobzio/capitan"
	"go.uber.org/zap"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
	"github.com/nik9play/audiofx/pkg/audiofx/effects"
	"github.com/nik9play/audiofx/pkg/audiofx/prefs"
)

const (
	presetNameSeparator = "|"

	flatPresetName         = "Flat"
	smallSpeakersPreset    = "Small Speakers"
	smallSpeakersLevels    = "-170;270;50;-220;200"
	smallSpeakersBandCount = 5
)

// CurrentDeviceProvider reports the output device audio is routed to
type CurrentDeviceProvider interface {
	CurrentDevice() *device.Info
}

// DevicePreferences resolves preference bundles by device and writes the
// factory defaults
type DevicePreferences struct {
	logger  *zap.SugaredLogger
	store   prefs.Store
	factory effects.Factory
	current CurrentDeviceProvider
}

func NewDevicePreferences(
	logger *zap.SugaredLogger,
	store prefs.Store,
	factory effects.Factory,
	current CurrentDeviceProvider,
) *DevicePreferences {
	logger = logger.Named("device_prefs")

	p := &DevicePreferences{
		logger:  logger,
		store:   store,
		factory: factory,
		current: current,
	}

	logger.Debug("Created device preferences instance")

	return p
}

// CurrentDevicePrefs returns the bundle of the current output device
func (p *DevicePreferences) CurrentDevicePrefs() *prefs.Bundle {
	var dev *device.Info
	if p.current != nil {
		dev = p.current.CurrentDevice()
	}
	return p.BundleFor(dev)
}

func (p *DevicePreferences) BundleFor(dev *device.Info) *prefs.Bundle {
	return prefs.NewBundle(p.store, device.Identity(dev))
}

func (p *DevicePreferences) Global() *prefs.Bundle {
	return prefs.NewBundle(p.store, prefs.GlobalBucket)
}

// PresetNames lists the stored equalizer presets
func (p *DevicePreferences) PresetNames() []string {
	raw := p.Global().GetString(prefs.KeyEqPresetNames, "")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, presetNameSeparator)
}

// PresetLevels returns the levels of a stored preset in decibels
func (p *DevicePreferences) PresetLevels(index int) ([]float32, error) {
	raw := p.Global().GetString(prefs.KeyEqPresetFactory(index), "")
	if raw == "" {
		return nil, fmt.Errorf("no equalizer preset %d", index)
	}

	millibels, err := prefs.BandsToInts(raw)
	if err != nil {
		return nil, fmt.Errorf("parse equalizer preset %d: %w", index, err)
	}

	return prefs.MillibelsToDecibels(millibels), nil
}

// InitDefaults writes capability metadata and device defaults when they are
// missing, outdated or forceOverride is set. A failing capability query is
// returned wrapped in ErrCapabilityDiscovery and must stop startup.
func (p *DevicePreferences) InitDefaults(forceOverride bool) error {
	global := p.Global()

	version := global.GetInt(prefs.KeyPrefsVersion, 0)
	needsUpdate := version < prefs.CurrentVersion

	if global.GetBool(prefs.KeySavedDefaults, false) && !needsUpdate && !forceOverride {
		p.logger.Debugw("Defaults are up to date", "version", version)
		return nil
	}

	caps, err := p.factory.Capabilities()
	if err != nil {
		p.store.Clear(prefs.GlobalBucket)
		p.logger.Errorw("Failed to query effect capabilities", "error", err)
		return fmt.Errorf("%w: %w", ErrCapabilityDiscovery, err)
	}

	p.writeCapabilities(global, caps)
	p.applyDefaults(caps, p.ensureSmallSpeakersPreset(global, caps), needsUpdate || forceOverride)

	global.PutInt(prefs.KeyPrefsVersion, prefs.CurrentVersion)
	global.PutBool(prefs.KeySavedDefaults, true)

	if err := global.Commit(); err != nil {
		p.logger.Errorw("Failed to commit default preferences", "error", err)
		return fmt.Errorf("commit defaults: %w", err)
	}

	p.logger.Infow("Initialized default preferences",
		"previousVersion", version,
		"version", prefs.CurrentVersion,
		"brand", caps.Brand,
		"bands", caps.NumBands)

	capitan.Emit(context.Background(), DefaultsInitialized, KeyBrand.Field(string(caps.Brand)))

	return nil
}

func (p *DevicePreferences) writeCapabilities(global *prefs.Bundle, caps effects.Capabilities) {
	global.PutString(prefs.KeyBrand, string(caps.Brand))
	global.PutBool(prefs.KeyHasBassBoost, caps.HasBassBoost)
	global.PutBool(prefs.KeyHasVirtualizer, caps.HasVirtualizer)
	global.PutBool(prefs.KeyHasReverb, caps.HasReverb)
	global.PutBool(prefs.KeyHasTreble, caps.HasTrebleBoost)
	global.PutBool(prefs.KeyHasVolumeBoost, caps.HasVolumeBoost)

	global.PutInt(prefs.KeyEqNumBands, caps.NumBands)
	global.PutString(prefs.KeyEqBandRange, prefs.IntsToBands(caps.BandLevelRange[:]))
	global.PutString(prefs.KeyEqCenterFreqs, prefs.IntsToBands(caps.CenterFrequencies))

	names := make([]string, len(caps.Presets))
	for idx, preset := range caps.Presets {
		names[idx] = preset.Name
		global.PutString(prefs.KeyEqPresetFactory(idx), prefs.IntsToBands(preset.Levels))
	}

	global.PutInt(prefs.KeyEqNumPresets, len(caps.Presets))
	global.PutString(prefs.KeyEqPresetNames, strings.Join(names, presetNameSeparator))
}

// ensureSmallSpeakersPreset adds a curve for small built-in speakers to five
// band equalizers and returns its index, or -1. DTS engines ship their own
// tuning and get no extra preset.
func (p *DevicePreferences) ensureSmallSpeakersPreset(global *prefs.Bundle, caps effects.Capabilities) int {
	if caps.Brand == effects.BrandDTS || caps.NumBands != smallSpeakersBandCount {
		return -1
	}

	names := p.PresetNames()
	if idx := funk.IndexOfString(names, smallSpeakersPreset); idx >= 0 {
		return idx
	}

	idx := len(names)
	names = append(names, smallSpeakersPreset)

	global.PutString(prefs.KeyEqPresetFactory(idx), smallSpeakersLevels)
	global.PutString(prefs.KeyEqPresetNames, strings.Join(names, presetNameSeparator))
	global.PutInt(prefs.KeyEqNumPresets, len(names))

	return idx
}

func (p *DevicePreferences) applyDefaults(caps effects.Capabilities, smallSpeakers int, override bool) {
	speaker := prefs.NewBundle(p.store, device.IdentitySpeaker)
	if !override && speaker.Exists() {
		p.logger.Debug("Device defaults already present, leaving them alone")
		return
	}

	if caps.Brand == effects.BrandDTS {
		p.logger.Debug("DTS engine, no device defaults")
		return
	}

	headset := prefs.NewBundle(p.store, device.IdentityHeadset)
	headset.PutBool(prefs.KeyGlobalEnable, true)

	if caps.Brand == effects.BrandMaxxAudio {
		speaker.PutBool(prefs.KeyGlobalEnable, true)
		speaker.PutBool(prefs.KeyVolumeBoostEnable, true)
		speaker.PutBool(prefs.KeyBassEnable, true)
		speaker.PutInt(prefs.KeyBassStrength, 400)
		speaker.PutBool(prefs.KeyTrebleEnable, true)
		speaker.PutInt(prefs.KeyTrebleStrength, 32)

		headset.PutBool(prefs.KeyVolumeBoostEnable, true)
		headset.PutBool(prefs.KeyBassEnable, true)
		headset.PutInt(prefs.KeyBassStrength, 200)
		headset.PutBool(prefs.KeyTrebleEnable, true)
		headset.PutInt(prefs.KeyTrebleStrength, 40)
		headset.PutBool(prefs.KeyVirtualizerEnable, true)
		headset.PutInt(prefs.KeyVirtualizerStrength, 200)
	} else {
		headset.PutBool(prefs.KeyBassEnable, true)
		headset.PutInt(prefs.KeyBassStrength, 150)
		headset.PutBool(prefs.KeyVirtualizerEnable, true)
		headset.PutInt(prefs.KeyVirtualizerStrength, 200)
		headset.PutInt(prefs.KeyEqPreset, max(caps.PresetIndex(flatPresetName), 0))
	}

	if smallSpeakers >= 0 {
		speaker.PutBool(prefs.KeyGlobalEnable, true)
		speaker.PutInt(prefs.KeyEqPreset, smallSpeakers)
	}
}
