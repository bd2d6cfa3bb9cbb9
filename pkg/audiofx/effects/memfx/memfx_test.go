package memfx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
	"github.com/nik9play/audiofx/pkg/audiofx/effects"
)

func TestCapabilities(t *testing.T) {
	f := NewFactory(zaptest.NewLogger(t).Sugar())

	caps, err := f.Capabilities()
	require.NoError(t, err)
	require.Equal(t, 5, caps.NumBands)
	require.Len(t, caps.CenterFrequencies, 5)
	require.Equal(t, 3, caps.PresetIndex("Flat"))
	require.False(t, caps.HasVolumeBoost)

	maxx := NewFactory(zaptest.NewLogger(t).Sugar(), WithBrand(effects.BrandMaxxAudio))
	caps, err = maxx.Capabilities()
	require.NoError(t, err)
	require.True(t, caps.HasVolumeBoost)
}

func TestHandleTransactions(t *testing.T) {
	f := NewFactory(zaptest.NewLogger(t).Sugar(), WithReleaseDelay(time.Second))

	h, err := f.Create(5, &device.Info{ID: 1, Type: device.TypeBuiltinSpeaker})
	require.NoError(t, err)
	require.Equal(t, time.Second, h.ReleaseDelay())

	require.Error(t, h.CommitUpdate())
	require.NoError(t, h.BeginUpdate())
	require.Error(t, h.BeginUpdate())

	require.NoError(t, h.EnableBassBoost(true))
	require.NoError(t, h.SetBassBoostStrength(4000))
	require.NoError(t, h.SetEqualizerLevelsDecibels([]float32{1, 2, 3, 4, 5}))
	require.Error(t, h.SetEqualizerLevelsDecibels([]float32{1}))
	require.Error(t, h.SetEqualizerBandLevel(9, 1))
	require.NoError(t, h.CommitUpdate())

	live, ok := f.Handle(5)
	require.True(t, ok)

	state := live.State()
	require.True(t, state.BassBoostEnabled)
	require.Equal(t, 1000, state.BassBoostStrength)
	require.Equal(t, []float32{1, 2, 3, 4, 5}, state.EqualizerLevels)
	require.Equal(t, 1, state.Commits)

	require.NoError(t, h.Release())
	require.Error(t, h.Release())
	require.Error(t, h.EnableReverb(true))

	_, ok = f.Handle(5)
	require.False(t, ok)
}

func TestCreateRejectsInvalidSession(t *testing.T) {
	f := NewFactory(zaptest.NewLogger(t).Sugar())

	_, err := f.Create(0, nil)
	require.Error(t, err)
}
