package audiofx

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
)

type fakeDeviceSource struct {
	lock    sync.Mutex
	devices []device.Info
	err     error
	changes chan struct{}
}

func newFakeDeviceSource(devices ...device.Info) *fakeDeviceSource {
	return &fakeDeviceSource{devices: devices, changes: make(chan struct{}, 1)}
}

func (s *fakeDeviceSource) Devices() ([]device.Info, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]device.Info(nil), s.devices...), s.err
}

func (s *fakeDeviceSource) SubscribeToDeviceChanges() <-chan struct{} {
	return s.changes
}

func (s *fakeDeviceSource) Release() error { return nil }

func (s *fakeDeviceSource) set(devices ...device.Info) {
	s.lock.Lock()
	s.devices = devices
	s.lock.Unlock()

	s.changes <- struct{}{}
}

func receiveChange(t *testing.T, changes <-chan DeviceChange) DeviceChange {
	t.Helper()

	select {
	case change := <-changes:
		return change
	case <-time.After(time.Second):
		t.Fatal("no device change delivered")
		return DeviceChange{}
	}
}

var (
	speakerDevice = device.Info{ID: 1, Type: device.TypeBuiltinSpeaker}
	headsetDevice = device.Info{ID: 2, Type: device.TypeWiredHeadset}
)

func TestTrackerReportsFirstDevice(t *testing.T) {
	source := newFakeDeviceSource(speakerDevice)
	tracker := NewOutputTracker(zaptest.NewLogger(t).Sugar(), source)
	changes := tracker.SubscribeToOutputChanges()

	tracker.Register()
	defer tracker.Unregister()

	change := receiveChange(t, changes)
	require.True(t, change.FirstChange)
	require.Nil(t, change.Previous)
	require.True(t, change.Device.Equal(&speakerDevice))
	require.True(t, tracker.CurrentDevice().Equal(&speakerDevice))
}

func TestTrackerPicksHighestPriority(t *testing.T) {
	source := newFakeDeviceSource(speakerDevice, headsetDevice)
	tracker := NewOutputTracker(zaptest.NewLogger(t).Sugar(), source)
	changes := tracker.SubscribeToOutputChanges()

	tracker.Register()
	defer tracker.Unregister()

	require.True(t, receiveChange(t, changes).Device.Equal(&headsetDevice))
}

func TestTrackerDeduplicatesSameDevice(t *testing.T) {
	source := newFakeDeviceSource(speakerDevice)
	tracker := NewOutputTracker(zaptest.NewLogger(t).Sugar(), source)
	changes := tracker.SubscribeToOutputChanges()

	tracker.Register()
	defer tracker.Unregister()
	receiveChange(t, changes)

	source.set(speakerDevice)
	require.Never(t, func() bool { return len(changes) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	source.set(headsetDevice)
	change := receiveChange(t, changes)
	require.False(t, change.FirstChange)
	require.True(t, change.Device.Equal(&headsetDevice))
	require.True(t, change.Previous.Equal(&speakerDevice))
	require.True(t, tracker.PreviousDevice().Equal(&speakerDevice))
}

func TestTrackerKeepsDeviceWhenNothingConnected(t *testing.T) {
	source := newFakeDeviceSource(speakerDevice)
	tracker := NewOutputTracker(zaptest.NewLogger(t).Sugar(), source)
	changes := tracker.SubscribeToOutputChanges()

	tracker.Register()
	defer tracker.Unregister()
	receiveChange(t, changes)

	source.set()
	require.Never(t, func() bool { return len(changes) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	require.True(t, tracker.CurrentDevice().Equal(&speakerDevice))
}

func TestTrackerSurvivesSourceErrors(t *testing.T) {
	source := newFakeDeviceSource()
	source.err = errors.New("server gone")

	tracker := NewOutputTracker(zaptest.NewLogger(t).Sugar(), source)
	tracker.Register()
	defer tracker.Unregister()

	require.Nil(t, tracker.CurrentDevice())
}
