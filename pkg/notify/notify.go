// Package notify shows desktop notifications
package notify

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

type Notifier interface {
	Notify(title string, message string)
}

// DesktopNotifier sends notifications through the platform's notification center
type DesktopNotifier struct {
	logger  *zap.SugaredLogger
	appIcon string
	send    func(title, message, appIcon string) error
}

func NewDesktopNotifier(logger *zap.SugaredLogger, appIcon string) (*DesktopNotifier, error) {
	logger = logger.Named("notifier")
	dn := &DesktopNotifier{logger: logger, appIcon: appIcon, send: beeep.Notify}

	logger.Debug("Created desktop notifier instance")

	return dn, nil
}

func (dn *DesktopNotifier) Notify(title string, message string) {
	dn.logger.Infow("Sending notification", "title", title, "message", message)

	if err := dn.send(title, message, dn.appIcon); err != nil {
		dn.logger.Errorw("Failed to send desktop notification", "error", err)
	}
}

// Nop drops every notification
type Nop struct{}

func (Nop) Notify(string, string) {}
