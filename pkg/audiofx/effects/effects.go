// Package effects defines the contract between the coordinator and an effect
// engine: a factory producing one handle per playback session.
package effects

import (
	"time"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
)

// Handle is the live effect chain of a single session. Implementations may
// block; they are only ever called from one goroutine at a time.
type Handle interface {
	HasBassBoost() bool
	HasVirtualizer() bool
	HasReverb() bool
	HasTrebleBoost() bool
	HasVolumeBoost() bool

	// SetGlobalEnabled toggles bypass for the whole chain
	SetGlobalEnabled(enabled bool) error

	// BeginUpdate and CommitUpdate bracket a batch of parameter changes
	BeginUpdate() error
	CommitUpdate() error

	EnableEqualizer(enabled bool) error
	SetEqualizerLevelsDecibels(levels []float32) error
	SetEqualizerBandLevel(band int, level float32) error

	EnableBassBoost(enabled bool) error
	SetBassBoostStrength(strength int) error

	EnableVirtualizer(enabled bool) error
	SetVirtualizerStrength(strength int) error

	EnableTrebleBoost(enabled bool) error
	SetTrebleBoostStrength(strength int) error

	EnableVolumeBoost(enabled bool) error

	EnableReverb(enabled bool) error
	SetReverbPreset(preset int) error

	SetDevice(dev *device.Info) error

	// ReleaseDelay is how long a closed session should linger before Release,
	// some engines need time to drain
	ReleaseDelay() time.Duration
	Release() error
}

// Factory creates handles and reports what the engine can do
type Factory interface {
	Create(sessionID int, dev *device.Info) (Handle, error)
	Capabilities() (Capabilities, error)
}

// Brand names the engine family; it decides which defaults are written
type Brand string

const (
	BrandGeneric   Brand = "generic"
	BrandMaxxAudio Brand = "maxxaudio"
	BrandDTS       Brand = "dts"
)

// Preset is a factory equalizer preset, levels in millibels
type Preset struct {
	Name   string
	Levels []int
}

// Capabilities describes the engine, queried once when defaults are built
type Capabilities struct {
	Brand Brand

	NumBands          int
	BandLevelRange    [2]int
	CenterFrequencies []int
	Presets           []Preset

	HasBassBoost   bool
	HasVirtualizer bool
	HasReverb      bool
	HasTrebleBoost bool
	HasVolumeBoost bool
}

// PresetIndex returns the index of the named preset or -1
func (c Capabilities) PresetIndex(name string) int {
	for idx, preset := range c.Presets {
		if preset.Name == name {
			return idx
		}
	}
	return -1
}
