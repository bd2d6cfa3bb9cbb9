package audiofx

import "errors"

var (
	// ErrHandleCreation means the engine could not build an effect chain for a session
	ErrHandleCreation = errors.New("create effect handle")

	// ErrBeginUpdate and ErrCommitUpdate report a failed backend transaction.
	// Stored preferences are left as they are and applied on the next update.
	ErrBeginUpdate  = errors.New("begin backend update")
	ErrCommitUpdate = errors.New("commit backend update")

	// ErrCapabilityDiscovery is fatal to startup
	ErrCapabilityDiscovery = errors.New("discover effect capabilities")

	ErrManagerStopped = errors.New("session manager stopped")
)
