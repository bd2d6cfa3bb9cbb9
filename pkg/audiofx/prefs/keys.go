package prefs

import "fmt"

// GlobalBucket holds capability metadata and the schema version rather than
// per-device settings
const GlobalBucket = "global"

// CurrentVersion is bumped whenever stored defaults must be regenerated
const CurrentVersion = 4

// per-device keys
const (
	KeyGlobalEnable        = "audiofx.global.enable"
	KeyBassEnable          = "audiofx.bass.enable"
	KeyBassStrength        = "audiofx.bass.strength"
	KeyReverbPreset        = "audiofx.reverb.preset"
	KeyVirtualizerEnable   = "audiofx.virtualizer.enable"
	KeyVirtualizerStrength = "audiofx.virtualizer.strength"
	KeyTrebleEnable        = "audiofx.treble.enable"
	KeyTrebleStrength      = "audiofx.treble.strength"
	KeyVolumeBoostEnable   = "audiofx.maxxvolume.enable"
	KeyEqPreset            = "audiofx.eq.preset"
	KeyEqPresetLevels      = "audiofx.eq.preset.levels"
)

// global keys
const (
	KeyPrefsVersion   = "audiofx.global.prefs.version"
	KeySavedDefaults  = "saved_defaults"
	KeyHasBassBoost   = "audiofx.global.hasbassboost"
	KeyHasVirtualizer = "audiofx.global.hasvirtualizer"
	KeyHasReverb      = "audiofx.global.hasreverb"
	KeyHasTreble      = "audiofx.global.hastreble"
	KeyHasVolumeBoost = "audiofx.global.hasmaxxaudio"
	KeyBrand          = "audiofx.global.brand"

	KeyEqNumPresets  = "equalizer.number_of_presets"
	KeyEqNumBands    = "equalizer.number_of_bands"
	KeyEqBandRange   = "equalizer.band_level_range"
	KeyEqCenterFreqs = "equalizer.center_freqs"
	KeyEqPresetNames = "equalizer.preset_names"
)

// KeyEqPresetFactory returns the key holding the levels of factory preset n
func KeyEqPresetFactory(n int) string {
	return fmt.Sprintf("equalizer.preset.%d", n)
}
