package audiofx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
	"github.com/nik9play/audiofx/pkg/audiofx/effects"
	"github.com/nik9play/audiofx/pkg/audiofx/effects/memfx"
	"github.com/nik9play/audiofx/pkg/audiofx/prefs"
)

type fakeUpdater struct {
	lock      sync.Mutex
	updates   []effects.ChangeFlags
	overrides [][2]float32
}

func (u *fakeUpdater) Update(flags effects.ChangeFlags) {
	u.lock.Lock()
	defer u.lock.Unlock()

	u.updates = append(u.updates, flags)
}

func (u *fakeUpdater) SetOverrideLevel(band int, level float32) {
	u.lock.Lock()
	defer u.lock.Unlock()

	u.overrides = append(u.overrides, [2]float32{float32(band), level})
}

type controllerHarness struct {
	controller *Controller
	prefs      *DevicePreferences
	store      *prefs.MemoryStore
	updater    *fakeUpdater
	events     <-chan Event
	current    *staticDevice
}

func newControllerHarness(t *testing.T) *controllerHarness {
	t.Helper()

	logger := zaptest.NewLogger(t).Sugar()
	store := prefs.NewMemoryStore()
	current := &staticDevice{dev: &device.Info{ID: 2, Type: device.TypeWiredHeadset}}

	devicePrefs := NewDevicePreferences(logger, store, memfx.NewFactory(logger), current)
	require.NoError(t, devicePrefs.InitDefaults(false))

	bus := NewEventBus(logger)
	updater := &fakeUpdater{}

	return &controllerHarness{
		controller: NewController(logger, devicePrefs, updater, bus),
		prefs:      devicePrefs,
		store:      store,
		updater:    updater,
		events:     bus.Subscribe(),
		current:    current,
	}
}

func TestControllerBassBoost(t *testing.T) {
	h := newControllerHarness(t)
	commits := h.store.Commits()

	require.NoError(t, h.controller.SetBassBoost(true, 4000))

	headset := h.prefs.CurrentDevicePrefs()
	require.Equal(t, device.IdentityHeadset, headset.Name())
	require.True(t, headset.GetBool(prefs.KeyBassEnable, false))
	require.Equal(t, 1000, headset.GetInt(prefs.KeyBassStrength, 0))

	require.Equal(t, commits+1, h.store.Commits())
	require.Equal(t, []effects.ChangeFlags{effects.BassBoostChanged}, h.updater.updates)
}

func TestControllerWritesToCurrentDeviceOnly(t *testing.T) {
	h := newControllerHarness(t)
	h.current.dev = &device.Info{ID: 5, Type: device.TypeBluetoothA2DP, Address: "AA:BB"}

	require.NoError(t, h.controller.SetVirtualizer(true, 300))

	require.Equal(t, 300, h.prefs.BundleFor(h.current.dev).GetInt(prefs.KeyVirtualizerStrength, 0))
	require.Equal(t, 200, h.prefs.BundleFor(&device.Info{Type: device.TypeWiredHeadset}).GetInt(prefs.KeyVirtualizerStrength, 0))
}

func TestControllerGlobalEnabledPublishes(t *testing.T) {
	h := newControllerHarness(t)

	require.NoError(t, h.controller.SetGlobalEnabled(false))

	require.False(t, h.prefs.CurrentDevicePrefs().GetBool(prefs.KeyGlobalEnable, true))
	require.Equal(t, []effects.ChangeFlags{effects.AllChanged}, h.updater.updates)
	require.Equal(t, GlobalEnabledChangedEvent{Enabled: false}, <-h.events)
}

func TestControllerEqualizerPreset(t *testing.T) {
	h := newControllerHarness(t)

	require.NoError(t, h.controller.SetEqualizerPreset(0))

	headset := h.prefs.CurrentDevicePrefs()
	require.Equal(t, 0, headset.GetInt(prefs.KeyEqPreset, -1))
	require.Equal(t, "3;0;0;0;3", headset.GetString(prefs.KeyEqPresetLevels, ""))
	require.Equal(t, PresetChangedEvent{Index: 0, Name: "Normal"}, <-h.events)
	require.Equal(t, []effects.ChangeFlags{effects.EqChanged}, h.updater.updates)

	require.Error(t, h.controller.SetEqualizerPreset(42))
	require.Error(t, h.controller.SetEqualizerPreset(-1))
}

func TestControllerEqualizerLevels(t *testing.T) {
	h := newControllerHarness(t)

	require.Error(t, h.controller.SetEqualizerLevels([]float32{1, 2}))
	require.Empty(t, h.updater.updates)

	require.NoError(t, h.controller.SetEqualizerLevels([]float32{1, 2, 3, 4, 5.5}))
	require.Equal(t, "1;2;3;4;5.5", h.prefs.CurrentDevicePrefs().GetString(prefs.KeyEqPresetLevels, ""))
}

func TestControllerReverbPreset(t *testing.T) {
	h := newControllerHarness(t)

	require.Error(t, h.controller.SetReverbPreset(-1))
	require.NoError(t, h.controller.SetReverbPreset(3))
	require.Equal(t, 3, h.prefs.CurrentDevicePrefs().GetInt(prefs.KeyReverbPreset, 0))
}

func TestControllerPreviewDoesNotStore(t *testing.T) {
	h := newControllerHarness(t)
	commits := h.store.Commits()

	h.controller.PreviewBandLevel(1, -4.5)

	require.Equal(t, [][2]float32{{1, -4.5}}, h.updater.overrides)
	require.Equal(t, commits, h.store.Commits())
	require.Equal(t, BandLevelChangedEvent{Band: 1, Level: -4.5}, <-h.events)
}
