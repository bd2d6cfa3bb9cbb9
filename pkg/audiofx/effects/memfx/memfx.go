// Package memfx is an effect engine that keeps every parameter in memory and
// logs what it is told. It stands in for a DSP engine on hosts without one.
package memfx

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
	"github.com/nik9play/audiofx/pkg/audiofx/effects"
)

const (
	defaultReleaseDelay = 300 * time.Millisecond

	maxStrength       = 1000
	maxTrebleStrength = 100
)

var (
	errNestedUpdate   = errors.New("update already in progress")
	errNoUpdate       = errors.New("no update in progress")
	errReleased       = errors.New("handle released")
	errBandOutOfRange = errors.New("band out of range")
)

// center frequencies in milliHertz and factory presets in millibels,
// matching the stock five band equalizer
var (
	centerFrequencies = []int{60000, 230000, 910000, 3600000, 14000000}

	factoryPresets = []effects.Preset{
		{Name: "Normal", Levels: []int{300, 0, 0, 0, 300}},
		{Name: "Classical", Levels: []int{500, 300, -200, 400, 400}},
		{Name: "Dance", Levels: []int{600, 0, 200, 400, 100}},
		{Name: "Flat", Levels: []int{0, 0, 0, 0, 0}},
		{Name: "Folk", Levels: []int{300, 0, 0, 200, -100}},
		{Name: "Heavy Metal", Levels: []int{400, 100, 900, 300, 0}},
		{Name: "Hip Hop", Levels: []int{500, 300, 0, 100, 300}},
		{Name: "Jazz", Levels: []int{400, 200, -200, 200, 500}},
		{Name: "Pop", Levels: []int{-100, 200, 500, 100, -200}},
		{Name: "Rock", Levels: []int{500, 300, -100, 300, 500}},
	}
)

// Factory creates in-memory handles
type Factory struct {
	logger       *zap.SugaredLogger
	brand        effects.Brand
	releaseDelay time.Duration

	lock    sync.Mutex
	handles map[int]*Handle
}

// Option configures a Factory
type Option func(*Factory)

// WithReleaseDelay overrides how long closed sessions linger
func WithReleaseDelay(delay time.Duration) Option {
	return func(f *Factory) {
		f.releaseDelay = delay
	}
}

// WithBrand changes the reported engine brand
func WithBrand(brand effects.Brand) Option {
	return func(f *Factory) {
		f.brand = brand
	}
}

// NewFactory creates a Factory
func NewFactory(logger *zap.SugaredLogger, opts ...Option) *Factory {
	logger = logger.Named("memfx")

	f := &Factory{
		logger:       logger,
		brand:        effects.BrandGeneric,
		releaseDelay: defaultReleaseDelay,
		handles:      make(map[int]*Handle),
	}

	for _, opt := range opts {
		opt(f)
	}

	logger.Debugw("Created memfx factory instance", "brand", f.brand, "releaseDelay", f.releaseDelay)

	return f
}

func (f *Factory) Capabilities() (effects.Capabilities, error) {
	presets := make([]effects.Preset, len(factoryPresets))
	copy(presets, factoryPresets)

	return effects.Capabilities{
		Brand:             f.brand,
		NumBands:          len(centerFrequencies),
		BandLevelRange:    [2]int{-1500, 1500},
		CenterFrequencies: append([]int(nil), centerFrequencies...),
		Presets:           presets,
		HasBassBoost:      true,
		HasVirtualizer:    true,
		HasReverb:         true,
		HasTrebleBoost:    true,
		HasVolumeBoost:    f.brand == effects.BrandMaxxAudio,
	}, nil
}

func (f *Factory) Create(sessionID int, dev *device.Info) (effects.Handle, error) {
	if sessionID <= 0 {
		return nil, fmt.Errorf("invalid session id %d", sessionID)
	}

	h := &Handle{
		logger:       f.logger.With("session", sessionID),
		sessionID:    sessionID,
		releaseDelay: f.releaseDelay,
		volumeBoost:  f.brand == effects.BrandMaxxAudio,
		state: State{
			Device:          dev,
			EqualizerLevels: make([]float32, len(centerFrequencies)),
		},
	}

	f.lock.Lock()
	f.handles[sessionID] = h
	f.lock.Unlock()

	h.logger.Debugw("Created effect chain", "device", dev)

	return h, nil
}

// Handle returns the live handle for a session, if any
func (f *Factory) Handle(sessionID int) (*Handle, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()

	h, ok := f.handles[sessionID]
	if !ok || h.released() {
		return nil, false
	}
	return h, true
}
