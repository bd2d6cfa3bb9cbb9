package audiofx

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nik9play/audiofx/pkg/audiofx/effects"
	"github.com/nik9play/audiofx/pkg/audiofx/prefs"
)

// sessionUpdater is the part of the session manager controls need
type sessionUpdater interface {
	Update(flags effects.ChangeFlags)
	SetOverrideLevel(band int, level float32)
}

// Controller changes the current device's settings on behalf of a front end.
// Every change is stored, committed, published and then pushed to sessions.
type Controller struct {
	logger   *zap.SugaredLogger
	prefs    *DevicePreferences
	sessions sessionUpdater
	events   *EventBus
}

func NewController(logger *zap.SugaredLogger, devicePrefs *DevicePreferences, sessions sessionUpdater, events *EventBus) *Controller {
	logger = logger.Named("controls")

	c := &Controller{
		logger:   logger,
		prefs:    devicePrefs,
		sessions: sessions,
		events:   events,
	}

	logger.Debug("Created controller instance")

	return c
}

func (c *Controller) commit(bundle *prefs.Bundle, flags effects.ChangeFlags) error {
	if err := bundle.Commit(); err != nil {
		c.logger.Warnw("Failed to commit preferences", "bundle", bundle.Name(), "error", err)
		return fmt.Errorf("commit %s preferences: %w", bundle.Name(), err)
	}

	c.sessions.Update(flags)
	return nil
}

func (c *Controller) SetGlobalEnabled(enabled bool) error {
	bundle := c.prefs.CurrentDevicePrefs()
	bundle.PutBool(prefs.KeyGlobalEnable, enabled)

	if err := c.commit(bundle, effects.AllChanged); err != nil {
		return err
	}

	c.events.Publish(GlobalEnabledChangedEvent{Enabled: enabled})
	return nil
}

func (c *Controller) SetBassBoost(enabled bool, strength int) error {
	bundle := c.prefs.CurrentDevicePrefs()
	bundle.PutBool(prefs.KeyBassEnable, enabled)
	bundle.PutInt(prefs.KeyBassStrength, clampStrength(strength, maxBassStrength))

	return c.commit(bundle, effects.BassBoostChanged)
}

func (c *Controller) SetVirtualizer(enabled bool, strength int) error {
	bundle := c.prefs.CurrentDevicePrefs()
	bundle.PutBool(prefs.KeyVirtualizerEnable, enabled)
	bundle.PutInt(prefs.KeyVirtualizerStrength, clampStrength(strength, maxVirtualizerStrength))

	return c.commit(bundle, effects.VirtualizerChanged)
}

func (c *Controller) SetTrebleBoost(enabled bool, strength int) error {
	bundle := c.prefs.CurrentDevicePrefs()
	bundle.PutBool(prefs.KeyTrebleEnable, enabled)
	bundle.PutInt(prefs.KeyTrebleStrength, clampStrength(strength, maxTrebleStrength))

	return c.commit(bundle, effects.TrebleBoostChanged)
}

func (c *Controller) SetVolumeBoost(enabled bool) error {
	bundle := c.prefs.CurrentDevicePrefs()
	bundle.PutBool(prefs.KeyVolumeBoostEnable, enabled)

	return c.commit(bundle, effects.VolumeBoostChanged)
}

// SetReverbPreset stores a reverb preset, 0 turns reverb off
func (c *Controller) SetReverbPreset(preset int) error {
	if preset < 0 {
		return fmt.Errorf("invalid reverb preset %d", preset)
	}

	bundle := c.prefs.CurrentDevicePrefs()
	bundle.PutInt(prefs.KeyReverbPreset, preset)

	return c.commit(bundle, effects.ReverbChanged)
}

// SetEqualizerPreset selects a stored preset and copies its levels
func (c *Controller) SetEqualizerPreset(index int) error {
	names := c.prefs.PresetNames()
	if index < 0 || index >= len(names) {
		return fmt.Errorf("equalizer preset %d out of range (have %d)", index, len(names))
	}

	levels, err := c.prefs.PresetLevels(index)
	if err != nil {
		return err
	}

	bundle := c.prefs.CurrentDevicePrefs()
	bundle.PutInt(prefs.KeyEqPreset, index)
	bundle.PutString(prefs.KeyEqPresetLevels, prefs.FloatsToBands(levels))

	if err := c.commit(bundle, effects.EqChanged); err != nil {
		return err
	}

	c.events.Publish(PresetChangedEvent{Index: index, Name: names[index]})
	return nil
}

// SetEqualizerLevels stores custom levels in decibels
func (c *Controller) SetEqualizerLevels(levels []float32) error {
	global := c.prefs.Global()
	if bands := global.GetInt(prefs.KeyEqNumBands, 0); bands > 0 && bands != len(levels) {
		return fmt.Errorf("got %d levels for %d bands", len(levels), bands)
	}

	bundle := c.prefs.CurrentDevicePrefs()
	bundle.PutString(prefs.KeyEqPresetLevels, prefs.FloatsToBands(levels))

	return c.commit(bundle, effects.EqChanged)
}

// PreviewBandLevel pushes one band to every session without storing it,
// for live feedback while a control is being dragged
func (c *Controller) PreviewBandLevel(band int, level float32) {
	c.sessions.SetOverrideLevel(band, level)
	c.events.Publish(BandLevelChangedEvent{Band: band, Level: level})
}
