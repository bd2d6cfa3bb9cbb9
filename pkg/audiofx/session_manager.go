package audiofx

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
	"github.com/nik9play/audiofx/pkg/audiofx/effects"
	"github.com/nik9play/audiofx/pkg/audiofx/prefs"
)

// AttachGuard decides whether new sessions may get effects attached right now.
// SuppressAttach runs on the session source's goroutine and must not block.
type AttachGuard interface {
	SuppressAttach() bool
}

// bundleResolver returns the preference bundle for a device
type bundleResolver interface {
	BundleFor(dev *device.Info) *prefs.Bundle
	Global() *prefs.Bundle
}

type sessionEntry struct {
	handle effects.Handle

	markedForDeath bool
	markedAt       time.Time
	timerPending   bool
}

// sessionManager owns every effect handle. All mutation happens on a single
// worker goroutine; the public methods only queue commands.
type sessionManager struct {
	logger  *zap.SugaredLogger
	factory effects.Factory
	prefs   bundleResolver
	guard   AttachGuard
	clock   clockz.Clock
	ctx     context.Context

	// held by the worker while it processes a command, and by readers
	lock     sync.Mutex
	registry map[int]*sessionEntry
	device   *device.Info

	queue        *commandQueue
	queueWarning int
	inWorker     atomic.Bool
	started      atomic.Bool

	stopChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

type sessionManagerOption func(*sessionManager)

func withClock(clock clockz.Clock) sessionManagerOption {
	return func(m *sessionManager) {
		m.clock = clock
	}
}

func withAttachGuard(guard AttachGuard) sessionManagerOption {
	return func(m *sessionManager) {
		m.guard = guard
	}
}

func withQueueWarning(size int) sessionManagerOption {
	return func(m *sessionManager) {
		m.queueWarning = size
	}
}

const defaultQueueWarning = 256

func newSessionManager(
	logger *zap.SugaredLogger,
	factory effects.Factory,
	resolver bundleResolver,
	initialDevice *device.Info,
	opts ...sessionManagerOption,
) *sessionManager {
	logger = logger.Named("sessions")

	m := &sessionManager{
		logger:       logger,
		factory:      factory,
		prefs:        resolver,
		clock:        clockz.RealClock,
		ctx:          context.Background(),
		registry:     make(map[int]*sessionEntry),
		device:       initialDevice,
		queue:        newCommandQueue(),
		queueWarning: defaultQueueWarning,
		stopChannel:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	logger.Debug("Created session manager instance")

	return m
}

func (m *sessionManager) start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}

	m.wg.Add(1)
	go m.worker()

	m.logger.Debug("Session worker started")
}

// stop processes what is already queued, then releases every handle
func (m *sessionManager) stop() {
	if m.started.Load() {
		if err := m.flush(); err != nil {
			m.logger.Debugw("Skipping flush, already stopped", "error", err)
		}
	}

	m.stopOnce.Do(func() {
		close(m.stopChannel)
	})
	m.wg.Wait()

	m.lock.Lock()
	defer m.lock.Unlock()

	for sessionID, entry := range m.registry {
		if err := entry.handle.Release(); err != nil {
			m.logger.Warnw("Failed to release session handle", "session", sessionID, "error", err)
		}
		delete(m.registry, sessionID)
	}

	m.logger.Debug("Session worker stopped")
}

// flush blocks until everything queued so far was processed
func (m *sessionManager) flush() error {
	done := make(chan struct{})
	m.enqueue(barrierCmd{done: done})

	select {
	case <-done:
		return nil
	case <-m.stopChannel:
		return ErrManagerStopped
	}
}

// AddSession attaches effects to a session. Ids <= 0 are ignored.
func (m *sessionManager) AddSession(sessionID int) {
	if sessionID <= 0 {
		return
	}

	if m.guard != nil && m.guard.SuppressAttach() {
		m.logger.Warnw("Recording in progress, not attaching effects", "session", sessionID)
		return
	}

	if m.queue.pushAdd(sessionID) {
		m.logger.Debugw("Queued session add", "session", sessionID)
		m.checkBacklog()
	}
}

// RemoveSession releases a session's effects once its handle's release delay
// passed, unless the session is added again in the meantime
func (m *sessionManager) RemoveSession(sessionID int) {
	if sessionID <= 0 {
		return
	}

	if m.queue.pushRemove(sessionID) {
		m.logger.Debugw("Queued session removal", "session", sessionID)
		m.checkBacklog()
	}
}

// Update reapplies the categories in flags to every session
func (m *sessionManager) Update(flags effects.ChangeFlags) {
	m.enqueue(updateCmd{flags: flags})
}

// SetOverrideLevel pushes a single equalizer band to every session without
// reading preferences
func (m *sessionManager) SetOverrideLevel(band int, level float32) {
	m.enqueue(overrideLevelCmd{band: band, level: level})
}

// OnAudioOutputChanged moves every session to dev and reapplies everything
func (m *sessionManager) OnAudioOutputChanged(dev *device.Info) {
	m.enqueue(outputChangedCmd{device: dev})
}

func (m *sessionManager) GetEffectForSession(sessionID int) (effects.Handle, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	entry, ok := m.registry[sessionID]
	if !ok {
		return nil, false
	}
	return entry.handle, true
}

func (m *sessionManager) HasActiveSessions() bool {
	return m.SessionCount() > 0
}

func (m *sessionManager) SessionCount() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return len(m.registry)
}

// CurrentDevice returns the device sessions are currently attached to
func (m *sessionManager) CurrentDevice() *device.Info {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.device
}

func (m *sessionManager) enqueue(cmd command) {
	m.queue.push(cmd)
	m.checkBacklog()
}

func (m *sessionManager) checkBacklog() {
	if size := m.queue.len(); m.queueWarning > 0 && size > m.queueWarning {
		m.logger.Warnw("Session worker is falling behind", "queued", size)
	}
}

func (m *sessionManager) worker() {
	defer m.wg.Done()

	for {
		cmd, ok := m.queue.pop(m.stopChannel)
		if !ok {
			return
		}

		m.process(cmd)
	}
}

func (m *sessionManager) process(cmd command) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.inWorker.Store(true)
	defer m.inWorker.Store(false)

	switch c := cmd.(type) {
	case addSessionCmd:
		m.addSessionLocked(c.sessionID)
	case removeSessionCmd:
		m.removeSessionLocked(c.sessionID)
	case expireSessionCmd:
		m.expireSessionLocked(c.sessionID)
	case updateCmd:
		m.updateAllLocked(c.flags)
	case overrideLevelCmd:
		m.overrideLevelLocked(c.band, c.level)
	case outputChangedCmd:
		m.outputChangedLocked(c.device)
	case barrierCmd:
		close(c.done)
	default:
		m.logger.Warnw("Unknown command", "kind", cmd.kind())
	}
}

func (m *sessionManager) addSessionLocked(sessionID int) {
	if sessionID <= 0 {
		return
	}

	if entry, ok := m.registry[sessionID]; ok {
		if entry.markedForDeath {
			entry.markedForDeath = false
			m.logger.Debugw("Session reopened before removal, keeping effects", "session", sessionID)
			capitan.Emit(m.ctx, SessionReactivated, KeySessionID.Field(sessionID))
		}
		return
	}

	handle, err := m.factory.Create(sessionID, m.device)
	if err != nil {
		m.logger.Errorw("Failed to create effects for session", "session", sessionID, "error", err)
		capitan.Emit(m.ctx, HandleCreationFailed,
			KeySessionID.Field(sessionID),
			KeyError.Field(fmt.Errorf("%w: %w", ErrHandleCreation, err).Error()),
		)
		return
	}

	entry := &sessionEntry{handle: handle}
	m.registry[sessionID] = entry

	m.logger.Debugw("Added effects for session", "session", sessionID, "device", m.device)
	capitan.Emit(m.ctx, SessionAttached, KeySessionID.Field(sessionID))

	_ = m.updateBackendLocked(sessionID, entry, effects.AllChanged)
}

func (m *sessionManager) removeSessionLocked(sessionID int) {
	entry, ok := m.registry[sessionID]
	if !ok {
		m.logger.Debugw("Ignoring removal of unknown session", "session", sessionID)
		return
	}

	entry.markedForDeath = true
	entry.markedAt = m.clock.Now()

	if entry.timerPending {
		// the running timer re-checks markedAt when it fires
		return
	}

	m.scheduleExpiryLocked(sessionID, entry, entry.handle.ReleaseDelay())
	m.logger.Debugw("Session queued for removal", "session", sessionID, "delay", entry.handle.ReleaseDelay())
}

func (m *sessionManager) scheduleExpiryLocked(sessionID int, entry *sessionEntry, delay time.Duration) {
	entry.timerPending = true
	timer := m.clock.NewTimer(delay)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		select {
		case <-timer.C():
			m.queue.push(expireSessionCmd{sessionID: sessionID})
		case <-m.stopChannel:
			timer.Stop()
		}
	}()
}

func (m *sessionManager) expireSessionLocked(sessionID int) {
	entry, ok := m.registry[sessionID]
	if !ok {
		return
	}
	entry.timerPending = false

	// reopened while we were waiting
	if !entry.markedForDeath {
		return
	}

	delay := entry.handle.ReleaseDelay()
	if remaining := delay - m.clock.Since(entry.markedAt); remaining > 0 {
		m.scheduleExpiryLocked(sessionID, entry, remaining)
		m.logger.Debugw("Session closed again while waiting, re-armed removal",
			"session", sessionID,
			"remaining", remaining)
		return
	}

	if err := entry.handle.Release(); err != nil {
		m.logger.Warnw("Failed to release session handle", "session", sessionID, "error", err)
	}
	delete(m.registry, sessionID)

	m.logger.Debugw("Removed and released session", "session", sessionID)
	capitan.Emit(m.ctx, SessionReleased, KeySessionID.Field(sessionID))
}

func (m *sessionManager) updateAllLocked(flags effects.ChangeFlags) {
	m.logger.Debugw("Updating sessions", "identity", device.Identity(m.device), "flags", flags)

	for _, sessionID := range m.sessionIDsLocked() {
		_ = m.updateBackendLocked(sessionID, m.registry[sessionID], flags)
	}
}

func (m *sessionManager) overrideLevelLocked(band int, level float32) {
	for _, sessionID := range m.sessionIDsLocked() {
		if err := m.registry[sessionID].handle.SetEqualizerBandLevel(band, level); err != nil {
			m.logger.Warnw("Failed to set equalizer band level",
				"session", sessionID,
				"band", band,
				"level", level,
				"error", err)
		}
	}
}

func (m *sessionManager) outputChangedLocked(dev *device.Info) {
	if m.device == nil || (dev != nil && !m.device.Equal(dev)) {
		m.device = dev
	}

	m.logger.Debugw("Moving sessions to new output", "device", m.device, "sessions", len(m.registry))

	for _, sessionID := range m.sessionIDsLocked() {
		entry := m.registry[sessionID]

		if err := entry.handle.SetDevice(m.device); err != nil {
			m.logger.Warnw("Failed to set session device", "session", sessionID, "error", err)
		}

		_ = m.updateBackendLocked(sessionID, entry, effects.AllChanged)
	}
}

// updateBackendLocked pushes the current device's configuration to one handle.
// Backend calls may block, so this must only ever run on the session worker.
func (m *sessionManager) updateBackendLocked(sessionID int, entry *sessionEntry, flags effects.ChangeFlags) error {
	if !m.inWorker.Load() {
		panic("audiofx: backend update called outside the session worker")
	}

	bundle := m.prefs.BundleFor(m.device)

	err := applyConfiguration(m.logger.With("session", sessionID), flags, bundle, m.prefs.Global(), entry.handle)
	if err != nil {
		capitan.Emit(m.ctx, BackendUpdateFailed,
			KeySessionID.Field(sessionID),
			KeyFlags.Field(flags.String()),
			KeyError.Field(err.Error()),
		)
	}

	return err
}

// sessionIDsLocked returns registry keys in a stable order
func (m *sessionManager) sessionIDsLocked() []int {
	ids := make([]int, 0, len(m.registry))
	for sessionID := range m.registry {
		ids = append(ids, sessionID)
	}
	sort.Ints(ids)

	return ids
}
