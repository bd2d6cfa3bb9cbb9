package audiofx

import (
	"github.com/nik9play/audiofx/pkg/audiofx/device"
	"github.com/nik9play/audiofx/pkg/audiofx/effects"
)

// command is a unit of work for the session worker
type command interface {
	kind() string
}

type addSessionCmd struct {
	sessionID int
}

type removeSessionCmd struct {
	sessionID int
}

// expireSessionCmd is queued by a removal timer once the delay elapsed
type expireSessionCmd struct {
	sessionID int
}

type updateCmd struct {
	flags effects.ChangeFlags
}

type overrideLevelCmd struct {
	band  int
	level float32
}

type outputChangedCmd struct {
	device *device.Info
}

// barrierCmd is closed once everything queued before it was processed
type barrierCmd struct {
	done chan struct{}
}

func (addSessionCmd) kind() string    { return "add" }
func (removeSessionCmd) kind() string { return "remove" }
func (expireSessionCmd) kind() string { return "expire" }
func (updateCmd) kind() string        { return "update" }
func (overrideLevelCmd) kind() string { return "override_level" }
func (outputChangedCmd) kind() string { return "output_changed" }
func (barrierCmd) kind() string       { return "barrier" }
