package audiofx

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
	"github.com/nik9play/audiofx/pkg/audiofx/effects"
	"github.com/nik9play/audiofx/pkg/audiofx/prefs"
)

var errInjected = errors.New("injected failure")

// recordingHandle logs every backend call in order
type recordingHandle struct {
	lock  sync.Mutex
	calls []string

	releaseDelay time.Duration
	noVolume     bool
	failBegin    bool
	failCommit   bool
	failing      map[string]bool
	releases     int
}

func newRecordingHandle() *recordingHandle {
	return &recordingHandle{releaseDelay: time.Second, failing: map[string]bool{}}
}

func (h *recordingHandle) record(name string, args ...any) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	call := name
	if len(args) > 0 {
		call = fmt.Sprintf("%s(%s)", name, fmt.Sprint(args...))
	}
	h.calls = append(h.calls, call)

	if h.failing[name] {
		return errInjected
	}
	return nil
}

func (h *recordingHandle) Calls() []string {
	h.lock.Lock()
	defer h.lock.Unlock()

	return append([]string(nil), h.calls...)
}

func (h *recordingHandle) Reset() {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.calls = nil
}

func (h *recordingHandle) Releases() int {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.releases
}

func (h *recordingHandle) HasBassBoost() bool   { return true }
func (h *recordingHandle) HasVirtualizer() bool { return true }
func (h *recordingHandle) HasReverb() bool      { return true }
func (h *recordingHandle) HasTrebleBoost() bool { return true }
func (h *recordingHandle) HasVolumeBoost() bool { return !h.noVolume }

func (h *recordingHandle) SetGlobalEnabled(enabled bool) error {
	return h.record("SetGlobalEnabled", enabled)
}

func (h *recordingHandle) BeginUpdate() error {
	_ = h.record("BeginUpdate")
	if h.failBegin {
		return errInjected
	}
	return nil
}

func (h *recordingHandle) CommitUpdate() error {
	_ = h.record("CommitUpdate")
	if h.failCommit {
		return errInjected
	}
	return nil
}

func (h *recordingHandle) EnableEqualizer(enabled bool) error {
	return h.record("EnableEqualizer", enabled)
}

func (h *recordingHandle) SetEqualizerLevelsDecibels(levels []float32) error {
	return h.record("SetEqualizerLevelsDecibels", levels)
}

func (h *recordingHandle) SetEqualizerBandLevel(band int, level float32) error {
	return h.record("SetEqualizerBandLevel", band, ",", level)
}

func (h *recordingHandle) EnableBassBoost(enabled bool) error {
	return h.record("EnableBassBoost", enabled)
}

func (h *recordingHandle) SetBassBoostStrength(strength int) error {
	return h.record("SetBassBoostStrength", strength)
}

func (h *recordingHandle) EnableVirtualizer(enabled bool) error {
	return h.record("EnableVirtualizer", enabled)
}

func (h *recordingHandle) SetVirtualizerStrength(strength int) error {
	return h.record("SetVirtualizerStrength", strength)
}

func (h *recordingHandle) EnableTrebleBoost(enabled bool) error {
	return h.record("EnableTrebleBoost", enabled)
}

func (h *recordingHandle) SetTrebleBoostStrength(strength int) error {
	return h.record("SetTrebleBoostStrength", strength)
}

func (h *recordingHandle) EnableVolumeBoost(enabled bool) error {
	return h.record("EnableVolumeBoost", enabled)
}

func (h *recordingHandle) EnableReverb(enabled bool) error {
	return h.record("EnableReverb", enabled)
}

func (h *recordingHandle) SetReverbPreset(preset int) error {
	return h.record("SetReverbPreset", preset)
}

func (h *recordingHandle) SetDevice(dev *device.Info) error {
	return h.record("SetDevice", device.Identity(dev))
}

func (h *recordingHandle) ReleaseDelay() time.Duration {
	return h.releaseDelay
}

func (h *recordingHandle) Release() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.releases++
	return nil
}

// recordingFactory hands out recordingHandles and remembers them by session
type recordingFactory struct {
	lock         sync.Mutex
	handles      map[int]*recordingHandle
	created      int
	failCreate   bool
	releaseDelay time.Duration
}

func newRecordingFactory() *recordingFactory {
	return &recordingFactory{handles: map[int]*recordingHandle{}, releaseDelay: time.Second}
}

func (f *recordingFactory) Create(sessionID int, _ *device.Info) (effects.Handle, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.failCreate {
		return nil, errInjected
	}

	h := newRecordingHandle()
	h.releaseDelay = f.releaseDelay
	f.handles[sessionID] = h
	f.created++

	return h, nil
}

func (f *recordingFactory) Capabilities() (effects.Capabilities, error) {
	return effects.Capabilities{}, errInjected
}

func (f *recordingFactory) handle(t *testing.T, sessionID int) *recordingHandle {
	t.Helper()

	f.lock.Lock()
	defer f.lock.Unlock()

	h, ok := f.handles[sessionID]
	require.True(t, ok, "no handle created for session %d", sessionID)
	return h
}

func (f *recordingFactory) createdCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.created
}

type staticGuard bool

func (g staticGuard) SuppressAttach() bool { return bool(g) }

type managerHarness struct {
	manager *sessionManager
	factory *recordingFactory
	store   *prefs.MemoryStore
	clock   *clockz.FakeClock
	logs    *observer.ObservedLogs
}

func newManagerHarness(t *testing.T, opts ...sessionManagerOption) *managerHarness {
	t.Helper()

	observed, logs := observer.New(zap.DebugLevel)
	logger := zap.New(zapcore.NewTee(zaptest.NewLogger(t).Core(), observed)).Sugar()
	store := prefs.NewMemoryStore()
	factory := newRecordingFactory()
	clock := clockz.NewFakeClock()

	resolver := NewDevicePreferences(logger, store, factory, nil)

	opts = append([]sessionManagerOption{withClock(clock)}, opts...)
	m := newSessionManager(logger, factory, resolver, nil, opts...)
	m.start()
	t.Cleanup(m.stop)

	return &managerHarness{manager: m, factory: factory, store: store, clock: clock, logs: logs}
}

func (h *managerHarness) bundle(identity string) *prefs.Bundle {
	return prefs.NewBundle(h.store, identity)
}

func (h *managerHarness) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, h.manager.flush())
}
