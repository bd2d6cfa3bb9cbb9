package audiofx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
	"github.com/nik9play/audiofx/pkg/audiofx/effects"
	"github.com/nik9play/audiofx/pkg/audiofx/prefs"
)

func enableBass(b *prefs.Bundle, strength int) {
	b.PutBool(prefs.KeyGlobalEnable, true)
	b.PutBool(prefs.KeyBassEnable, true)
	b.PutInt(prefs.KeyBassStrength, strength)
}

func TestAddSessionIgnoresNonPositiveIDs(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.AddSession(0)
	h.manager.AddSession(-4)
	h.manager.RemoveSession(0)
	h.flush(t)

	require.Zero(t, h.manager.SessionCount())
	require.False(t, h.manager.HasActiveSessions())
	require.Zero(t, h.factory.createdCount())
}

func TestAddSessionIsIdempotent(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.AddSession(5)
	h.manager.AddSession(5)
	h.flush(t)
	h.manager.AddSession(5)
	h.flush(t)

	require.Equal(t, 1, h.manager.SessionCount())
	require.Equal(t, 1, h.factory.createdCount())
}

func TestAddSessionAppliesCurrentDeviceSettings(t *testing.T) {
	h := newManagerHarness(t)
	enableBass(h.bundle(device.IdentitySpeaker), 40)

	h.manager.AddSession(1)
	h.flush(t)

	handle, ok := h.manager.GetEffectForSession(1)
	require.True(t, ok)
	require.Same(t, h.factory.handle(t, 1), handle)

	calls := h.factory.handle(t, 1).Calls()
	require.Contains(t, calls, "SetGlobalEnabled(true)")
	require.Contains(t, calls, "EnableBassBoost(true)")
	require.Contains(t, calls, "SetBassBoostStrength(40)")
	require.Equal(t, "CommitUpdate", calls[len(calls)-1])
}

func TestSuppressedAttachCreatesNothing(t *testing.T) {
	h := newManagerHarness(t, withAttachGuard(staticGuard(true)))

	h.manager.AddSession(3)
	h.flush(t)

	require.Zero(t, h.manager.SessionCount())
	require.Zero(t, h.factory.createdCount())
}

func TestHandleCreationFailureLeavesRegistryEmpty(t *testing.T) {
	h := newManagerHarness(t)
	h.factory.failCreate = true

	h.manager.AddSession(3)
	h.flush(t)

	_, ok := h.manager.GetEffectForSession(3)
	require.False(t, ok)
	require.Zero(t, h.manager.SessionCount())
}

func TestReopenWithinReleaseDelayKeepsHandle(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.AddSession(7)
	h.flush(t)
	original, ok := h.manager.GetEffectForSession(7)
	require.True(t, ok)

	h.manager.RemoveSession(7)
	h.flush(t)
	h.manager.AddSession(7)
	h.flush(t)

	again, ok := h.manager.GetEffectForSession(7)
	require.True(t, ok)
	require.Same(t, original, again)
	require.Equal(t, 1, h.factory.createdCount())

	// the pending timer fires but the session is alive again
	h.clock.Advance(2 * time.Second)
	h.clock.BlockUntilReady()
	time.Sleep(20 * time.Millisecond)
	h.flush(t)

	require.Equal(t, 1, h.manager.SessionCount())
	require.Zero(t, h.factory.handle(t, 7).Releases())
}

func TestRemoveThenAddKeepsSessionAlive(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.AddSession(8)
	h.flush(t)

	h.manager.RemoveSession(8)
	h.manager.AddSession(8)
	h.flush(t)

	h.manager.lock.Lock()
	entry := h.manager.registry[8]
	h.manager.lock.Unlock()

	require.NotNil(t, entry)
	require.False(t, entry.markedForDeath)
	require.Equal(t, 1, h.factory.createdCount())
}

func TestSessionReleasedAfterDelay(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.AddSession(3)
	h.flush(t)
	h.manager.RemoveSession(3)
	h.flush(t)

	// still there until the delay passes
	require.Equal(t, 1, h.manager.SessionCount())

	h.clock.Advance(time.Second)
	h.clock.BlockUntilReady()

	require.Eventually(t, func() bool {
		return h.manager.SessionCount() == 0
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, h.factory.handle(t, 3).Releases())
}

func TestSecondCloseRearmsRemovalForRemainingTime(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.AddSession(4)
	h.flush(t)
	h.manager.RemoveSession(4)
	h.flush(t)

	h.clock.Advance(600 * time.Millisecond)
	h.manager.AddSession(4)
	h.flush(t)
	h.manager.RemoveSession(4)
	h.flush(t)

	// the first timer fires 400ms after the second close
	h.clock.Advance(500 * time.Millisecond)
	h.clock.BlockUntilReady()

	require.Eventually(t, func() bool {
		return h.logs.FilterMessage("Session closed again while waiting, re-armed removal").Len() == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, h.manager.SessionCount())
	require.Zero(t, h.factory.handle(t, 4).Releases())

	h.clock.Advance(600 * time.Millisecond)
	h.clock.BlockUntilReady()

	require.Eventually(t, func() bool {
		return h.manager.SessionCount() == 0
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, h.factory.handle(t, 4).Releases())
	require.Equal(t, 1, h.factory.createdCount())
}

func TestBacklogWarning(t *testing.T) {
	observed, logs := observer.New(zap.WarnLevel)
	factory := newRecordingFactory()
	resolver := NewDevicePreferences(zap.NewNop().Sugar(), prefs.NewMemoryStore(), factory, nil)

	// never started, so nothing drains the queue
	m := newSessionManager(zap.New(observed).Sugar(), factory, resolver, nil, withQueueWarning(2))
	t.Cleanup(m.stop)

	for i := 0; i < 4; i++ {
		m.Update(effects.EqChanged)
	}

	warnings := logs.FilterMessage("Session worker is falling behind").All()
	require.Len(t, warnings, 2)
	require.Equal(t, int64(4), warnings[1].ContextMap()["queued"])
}

func TestRemoveUnknownSessionIsNoop(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.RemoveSession(99)
	h.flush(t)

	require.Zero(t, h.manager.SessionCount())
}

func TestOutputChangeReappliesEverything(t *testing.T) {
	h := newManagerHarness(t)
	enableBass(h.bundle(device.IdentitySpeaker), 40)
	enableBass(h.bundle(device.IdentityHeadset), 500)

	h.manager.AddSession(1)
	h.manager.AddSession(2)
	h.flush(t)

	h.factory.handle(t, 1).Reset()
	h.factory.handle(t, 2).Reset()

	headset := &device.Info{ID: 3, Type: device.TypeWiredHeadset}
	h.manager.OnAudioOutputChanged(headset)
	h.flush(t)

	require.True(t, h.manager.CurrentDevice().Equal(headset))

	for _, sessionID := range []int{1, 2} {
		calls := h.factory.handle(t, sessionID).Calls()
		require.Equal(t, "SetDevice(headset)", calls[0])
		require.Contains(t, calls, "SetGlobalEnabled(true)")
		require.Contains(t, calls, "SetBassBoostStrength(500)")
		require.NotContains(t, calls, "SetBassBoostStrength(40)")
	}
}

func TestOutputChangeReachesMarkedSessions(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.AddSession(1)
	h.flush(t)
	h.manager.RemoveSession(1)
	h.flush(t)
	h.factory.handle(t, 1).Reset()

	h.manager.OnAudioOutputChanged(&device.Info{ID: 9, Type: device.TypeUSBDevice, ProductName: "DAC"})
	h.flush(t)

	require.Equal(t, "SetDevice(usb-DAC)", h.factory.handle(t, 1).Calls()[0])
}

func TestBluetoothDeviceUsesItsOwnBucket(t *testing.T) {
	h := newManagerHarness(t)
	enableBass(h.bundle(device.IdentitySpeaker), 40)
	enableBass(h.bundle("bluetooth-001122334455"), 700)

	h.manager.OnAudioOutputChanged(&device.Info{
		ID:      12,
		Type:    device.TypeBluetoothA2DP,
		Address: "00:11:22:33:44:55",
	})
	h.manager.AddSession(1)
	h.flush(t)

	calls := h.factory.handle(t, 1).Calls()
	require.Contains(t, calls, "SetBassBoostStrength(700)")
	require.NotContains(t, calls, "SetBassBoostStrength(40)")
}

func TestBypassOnlyTogglesGlobalEnable(t *testing.T) {
	h := newManagerHarness(t)
	speaker := h.bundle(device.IdentitySpeaker)
	enableBass(speaker, 40)
	speaker.PutBool(prefs.KeyGlobalEnable, false)

	h.manager.AddSession(1)
	h.flush(t)
	require.Equal(t, []string{"SetGlobalEnabled(false)"}, h.factory.handle(t, 1).Calls())

	h.factory.handle(t, 1).Reset()
	h.manager.Update(effects.BassBoostChanged)
	h.flush(t)
	require.Equal(t, []string{"SetGlobalEnabled(false)"}, h.factory.handle(t, 1).Calls())
}

func TestPartialUpdateTouchesOnlySelectedCategory(t *testing.T) {
	h := newManagerHarness(t)
	speaker := h.bundle(device.IdentitySpeaker)
	enableBass(speaker, 40)
	speaker.PutBool(prefs.KeyVirtualizerEnable, true)
	speaker.PutInt(prefs.KeyVirtualizerStrength, 200)

	h.manager.AddSession(1)
	h.flush(t)
	h.factory.handle(t, 1).Reset()

	h.manager.Update(effects.BassBoostChanged)
	h.flush(t)

	require.Equal(t, []string{
		"SetGlobalEnabled(true)",
		"BeginUpdate",
		"EnableBassBoost(true)",
		"SetBassBoostStrength(40)",
		"CommitUpdate",
	}, h.factory.handle(t, 1).Calls())
}

func TestOverrideLevelReachesEverySession(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.AddSession(1)
	h.manager.AddSession(2)
	h.flush(t)
	h.factory.handle(t, 1).Reset()
	h.factory.handle(t, 2).Reset()

	h.manager.SetOverrideLevel(2, 3.5)
	h.flush(t)

	require.Equal(t, []string{"SetEqualizerBandLevel(2,3.5)"}, h.factory.handle(t, 1).Calls())
	require.Equal(t, []string{"SetEqualizerBandLevel(2,3.5)"}, h.factory.handle(t, 2).Calls())
}

func TestStopReleasesEveryHandle(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.AddSession(1)
	h.manager.AddSession(2)
	h.flush(t)

	h.manager.stop()

	require.Zero(t, h.manager.SessionCount())
	require.Equal(t, 1, h.factory.handle(t, 1).Releases())
	require.Equal(t, 1, h.factory.handle(t, 2).Releases())
	require.ErrorIs(t, h.manager.flush(), ErrManagerStopped)
}

func TestBackendUpdateOutsideWorkerPanics(t *testing.T) {
	h := newManagerHarness(t)

	require.PanicsWithValue(t, "audiofx: backend update called outside the session worker", func() {
		_ = h.manager.updateBackendLocked(1, &sessionEntry{handle: newRecordingHandle()}, effects.AllChanged)
	})
}
