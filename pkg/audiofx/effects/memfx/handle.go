package memfx

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
)

// State is a snapshot of everything a handle was told
type State struct {
	Device        *device.Info
	GlobalEnabled bool

	EqualizerEnabled bool
	EqualizerLevels  []float32

	BassBoostEnabled  bool
	BassBoostStrength int

	VirtualizerEnabled  bool
	VirtualizerStrength int

	TrebleBoostEnabled  bool
	TrebleBoostStrength int

	VolumeBoostEnabled bool

	ReverbEnabled bool
	ReverbPreset  int

	Commits int
}

// Handle keeps one session's parameters
type Handle struct {
	logger       *zap.SugaredLogger
	sessionID    int
	releaseDelay time.Duration
	volumeBoost  bool

	lock       sync.Mutex
	state      State
	inUpdate   bool
	isReleased bool
}

func (h *Handle) HasBassBoost() bool   { return true }
func (h *Handle) HasVirtualizer() bool { return true }
func (h *Handle) HasReverb() bool      { return true }
func (h *Handle) HasTrebleBoost() bool { return true }
func (h *Handle) HasVolumeBoost() bool { return h.volumeBoost }

func (h *Handle) ReleaseDelay() time.Duration {
	return h.releaseDelay
}

// State returns a copy of the current parameters
func (h *Handle) State() State {
	h.lock.Lock()
	defer h.lock.Unlock()

	s := h.state
	s.EqualizerLevels = append([]float32(nil), h.state.EqualizerLevels...)
	return s
}

func (h *Handle) released() bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.isReleased
}

// apply runs fn under the handle lock unless the handle was released
func (h *Handle) apply(what string, fn func(s *State) error) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.isReleased {
		return fmt.Errorf("%s: %w", what, errReleased)
	}

	if err := fn(&h.state); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}

	return nil
}

func (h *Handle) SetGlobalEnabled(enabled bool) error {
	h.logger.Debugw("Set global enabled", "enabled", enabled)
	return h.apply("set global enabled", func(s *State) error {
		s.GlobalEnabled = enabled
		return nil
	})
}

func (h *Handle) BeginUpdate() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.isReleased {
		return errReleased
	}
	if h.inUpdate {
		return errNestedUpdate
	}

	h.inUpdate = true
	return nil
}

func (h *Handle) CommitUpdate() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if !h.inUpdate {
		return errNoUpdate
	}

	h.inUpdate = false
	h.state.Commits++
	h.logger.Debugw("Committed update", "commits", h.state.Commits)

	return nil
}

func (h *Handle) EnableEqualizer(enabled bool) error {
	return h.apply("enable equalizer", func(s *State) error {
		s.EqualizerEnabled = enabled
		return nil
	})
}

func (h *Handle) SetEqualizerLevelsDecibels(levels []float32) error {
	h.logger.Debugw("Set equalizer levels", "levels", levels)
	return h.apply("set equalizer levels", func(s *State) error {
		if len(levels) != len(s.EqualizerLevels) {
			return fmt.Errorf("got %d levels for %d bands", len(levels), len(s.EqualizerLevels))
		}
		copy(s.EqualizerLevels, levels)
		return nil
	})
}

func (h *Handle) SetEqualizerBandLevel(band int, level float32) error {
	return h.apply("set equalizer band level", func(s *State) error {
		if band < 0 || band >= len(s.EqualizerLevels) {
			return fmt.Errorf("band %d: %w", band, errBandOutOfRange)
		}
		s.EqualizerLevels[band] = level
		return nil
	})
}

func (h *Handle) EnableBassBoost(enabled bool) error {
	return h.apply("enable bass boost", func(s *State) error {
		s.BassBoostEnabled = enabled
		return nil
	})
}

func (h *Handle) SetBassBoostStrength(strength int) error {
	return h.apply("set bass boost strength", func(s *State) error {
		s.BassBoostStrength = clamp(strength, maxStrength)
		return nil
	})
}

func (h *Handle) EnableVirtualizer(enabled bool) error {
	return h.apply("enable virtualizer", func(s *State) error {
		s.VirtualizerEnabled = enabled
		return nil
	})
}

func (h *Handle) SetVirtualizerStrength(strength int) error {
	return h.apply("set virtualizer strength", func(s *State) error {
		s.VirtualizerStrength = clamp(strength, maxStrength)
		return nil
	})
}

func (h *Handle) EnableTrebleBoost(enabled bool) error {
	return h.apply("enable treble boost", func(s *State) error {
		s.TrebleBoostEnabled = enabled
		return nil
	})
}

func (h *Handle) SetTrebleBoostStrength(strength int) error {
	return h.apply("set treble boost strength", func(s *State) error {
		s.TrebleBoostStrength = clamp(strength, maxTrebleStrength)
		return nil
	})
}

func (h *Handle) EnableVolumeBoost(enabled bool) error {
	return h.apply("enable volume boost", func(s *State) error {
		if !h.volumeBoost {
			return fmt.Errorf("volume boost not supported")
		}
		s.VolumeBoostEnabled = enabled
		return nil
	})
}

func (h *Handle) EnableReverb(enabled bool) error {
	return h.apply("enable reverb", func(s *State) error {
		s.ReverbEnabled = enabled
		return nil
	})
}

func (h *Handle) SetReverbPreset(preset int) error {
	return h.apply("set reverb preset", func(s *State) error {
		s.ReverbPreset = preset
		return nil
	})
}

func (h *Handle) SetDevice(dev *device.Info) error {
	h.logger.Debugw("Set device", "device", dev)
	return h.apply("set device", func(s *State) error {
		s.Device = dev
		return nil
	})
}

func (h *Handle) Release() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.isReleased {
		return errReleased
	}

	h.isReleased = true
	h.logger.Debug("Released effect chain")

	return nil
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}
