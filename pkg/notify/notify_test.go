package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDesktopNotifierForwards(t *testing.T) {
	dn, err := NewDesktopNotifier(zaptest.NewLogger(t).Sugar(), "icon.png")
	require.NoError(t, err)

	var got []string
	dn.send = func(title, message, appIcon string) error {
		got = append(got, title, message, appIcon)
		return nil
	}

	dn.Notify("Audio output changed", "Headset")
	require.Equal(t, []string{"Audio output changed", "Headset", "icon.png"}, got)
}

func TestDesktopNotifierSwallowsErrors(t *testing.T) {
	dn, err := NewDesktopNotifier(zaptest.NewLogger(t).Sugar(), "")
	require.NoError(t, err)

	dn.send = func(string, string, string) error {
		return errors.New("no notification daemon")
	}

	require.NotPanics(t, func() { dn.Notify("a", "b") })
}
