package audiofx

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nik9play/audiofx/pkg/audiofx/effects"
	"github.com/nik9play/audiofx/pkg/audiofx/prefs"
)

// backend strength ranges
const (
	maxBassStrength        = 1000
	maxVirtualizerStrength = 1000
	maxTrebleStrength      = 100
)

type categoryUpdate struct {
	name      string
	flag      effects.ChangeFlags
	supported func(effects.Handle) bool
	apply     func(bundle, global *prefs.Bundle, handle effects.Handle) error
}

// signal chain order; kept stable so backends see a deterministic call sequence
var categoryUpdates = []categoryUpdate{
	{
		name:      "eq",
		flag:      effects.EqChanged,
		supported: func(effects.Handle) bool { return true },
		apply:     applyEqualizer,
	},
	{
		name:      "bass",
		flag:      effects.BassBoostChanged,
		supported: effects.Handle.HasBassBoost,
		apply: func(bundle, _ *prefs.Bundle, handle effects.Handle) error {
			return enableWithStrength(handle.EnableBassBoost, handle.SetBassBoostStrength,
				bundle.GetBool(prefs.KeyBassEnable, false),
				clampStrength(bundle.GetInt(prefs.KeyBassStrength, 0), maxBassStrength))
		},
	},
	{
		name:      "reverb",
		flag:      effects.ReverbChanged,
		supported: effects.Handle.HasReverb,
		apply: func(bundle, _ *prefs.Bundle, handle effects.Handle) error {
			preset := bundle.GetInt(prefs.KeyReverbPreset, 0)
			return enableWithStrength(handle.EnableReverb, handle.SetReverbPreset, preset > 0, preset)
		},
	},
	{
		name:      "virtualizer",
		flag:      effects.VirtualizerChanged,
		supported: effects.Handle.HasVirtualizer,
		apply: func(bundle, _ *prefs.Bundle, handle effects.Handle) error {
			return enableWithStrength(handle.EnableVirtualizer, handle.SetVirtualizerStrength,
				bundle.GetBool(prefs.KeyVirtualizerEnable, false),
				clampStrength(bundle.GetInt(prefs.KeyVirtualizerStrength, 0), maxVirtualizerStrength))
		},
	},
	{
		name:      "treble",
		flag:      effects.TrebleBoostChanged,
		supported: effects.Handle.HasTrebleBoost,
		apply: func(bundle, _ *prefs.Bundle, handle effects.Handle) error {
			return enableWithStrength(handle.EnableTrebleBoost, handle.SetTrebleBoostStrength,
				bundle.GetBool(prefs.KeyTrebleEnable, false),
				clampStrength(bundle.GetInt(prefs.KeyTrebleStrength, 0), maxTrebleStrength))
		},
	},
	{
		name:      "volume",
		flag:      effects.VolumeBoostChanged,
		supported: effects.Handle.HasVolumeBoost,
		apply: func(bundle, _ *prefs.Bundle, handle effects.Handle) error {
			return handle.EnableVolumeBoost(bundle.GetBool(prefs.KeyVolumeBoostEnable, false))
		},
	},
}

// applyConfiguration pushes the categories selected by flags from bundle to
// handle. A globally disabled bundle only toggles bypass. Category failures
// are logged and skipped; only transaction failures are returned.
func applyConfiguration(
	logger *zap.SugaredLogger,
	flags effects.ChangeFlags,
	bundle *prefs.Bundle,
	global *prefs.Bundle,
	handle effects.Handle,
) error {
	enabled := bundle.GetBool(prefs.KeyGlobalEnable, false)

	if flags.Has(effects.AllChanged) {
		if err := handle.SetGlobalEnabled(enabled); err != nil {
			logger.Warnw("Failed to set global enabled", "enabled", enabled, "error", err)
		}
	}

	if !enabled {
		return nil
	}

	if err := handle.BeginUpdate(); err != nil {
		logger.Errorw("Effect backend refused to begin update", "bundle", bundle.Name(), "error", err)
		return fmt.Errorf("%w: %w", ErrBeginUpdate, err)
	}

	for _, category := range categoryUpdates {
		if !flags.Has(category.flag) || !category.supported(handle) {
			continue
		}

		if err := category.apply(bundle, global, handle); err != nil {
			logger.Warnw("Failed to update effect category",
				"category", category.name,
				"bundle", bundle.Name(),
				"error", err)
		}
	}

	if err := handle.CommitUpdate(); err != nil {
		logger.Errorw("Effect backend refused to commit update", "bundle", bundle.Name(), "error", err)
		return fmt.Errorf("%w: %w", ErrCommitUpdate, err)
	}

	return nil
}

func applyEqualizer(bundle, global *prefs.Bundle, handle effects.Handle) error {
	enableErr := handle.EnableEqualizer(true)

	levels, err := equalizerLevels(bundle, global)
	if err != nil {
		return errors.Join(enableErr, err)
	}

	if levels == nil {
		return enableErr
	}

	return errors.Join(enableErr, handle.SetEqualizerLevelsDecibels(levels))
}

// equalizerLevels prefers the explicit level string and falls back to the
// stored factory preset the bundle points at. nil means nothing to set.
func equalizerLevels(bundle, global *prefs.Bundle) ([]float32, error) {
	if bundle.Has(prefs.KeyEqPresetLevels) {
		levels, err := prefs.BandsToFloats(bundle.GetString(prefs.KeyEqPresetLevels, ""))
		if err != nil {
			return nil, fmt.Errorf("parse equalizer levels: %w", err)
		}
		return levels, nil
	}

	if !bundle.Has(prefs.KeyEqPreset) || global == nil {
		return nil, nil
	}

	preset := bundle.GetInt(prefs.KeyEqPreset, -1)
	raw := global.GetString(prefs.KeyEqPresetFactory(preset), "")
	if raw == "" {
		return nil, nil
	}

	millibels, err := prefs.BandsToInts(raw)
	if err != nil {
		return nil, fmt.Errorf("parse equalizer preset %d: %w", preset, err)
	}

	return prefs.MillibelsToDecibels(millibels), nil
}

func enableWithStrength(enable func(bool) error, strength func(int) error, enabled bool, value int) error {
	return errors.Join(enable(enabled), strength(value))
}

func clampStrength(value, limit int) int {
	if value < 0 {
		return 0
	}
	if value > limit {
		return limit
	}
	return value
}
