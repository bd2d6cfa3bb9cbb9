// Package audiofx attaches audio effect chains to playback sessions and keeps
// them configured from per-output-device preferences.
package audiofx

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jeandeaual/go-locale"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"github.com/zoobzio/capitan"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
	"github.com/nik9play/audiofx/pkg/audiofx/effects"
	"github.com/nik9play/audiofx/pkg/audiofx/effects/memfx"
	"github.com/nik9play/audiofx/pkg/audiofx/prefs"
	"github.com/nik9play/audiofx/pkg/audiofx/util"
	"github.com/nik9play/audiofx/pkg/notify"
)

// AudioFx is the main entity managing access to all sub-components
type AudioFx struct {
	logger    *zap.SugaredLogger
	notifier  notify.Notifier
	config    *CanonicalConfig
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
	locLock   sync.RWMutex

	store         *prefs.FileStore
	factory       effects.Factory
	deviceSource  DeviceSource
	tracker       *OutputTracker
	devicePrefs   *DevicePreferences
	sessions      *sessionManager
	sessionSource SessionSource
	events        *EventBus
	controller    *Controller
	obs           *OBSClient
	guard         *recordingGuard

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopChannel chan bool
	verbose     bool
}

//go:embed lang/active.*.toml
var langFS embed.FS

var errUnknownBackend = errors.New("unknown effects backend")

// NewAudioFx creates an AudioFx instance
func NewAudioFx(logger *zap.SugaredLogger, verbose bool, configPath string) (*AudioFx, error) {
	logger = logger.Named("audiofx")

	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	if _, err := bundle.LoadMessageFileFS(langFS, "lang/active.ru.toml"); err != nil {
		logger.Errorw("Failed to open ru message file", "error", err)
		return nil, fmt.Errorf("load message file: %w", err)
	}

	notifier, err := notify.NewDesktopNotifier(logger, "")
	if err != nil {
		logger.Errorw("Failed to create DesktopNotifier", "error", err)
		return nil, fmt.Errorf("create new DesktopNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier, configPath)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &AudioFx{
		logger:      logger,
		notifier:    notifier,
		config:      config,
		bundle:      bundle,
		events:      NewEventBus(logger),
		ctx:         ctx,
		cancel:      cancel,
		stopChannel: make(chan bool),
		verbose:     verbose,
	}

	logger.Debug("Created audiofx instance")

	return a, nil
}

// Initialize sets up components and runs until interrupted
func (a *AudioFx) Initialize() error {
	a.logger.Debug("Initializing")

	// temp localizer because we don't know the configured language yet
	initialLocalizer, err := a.GetSystemLocalizer()
	if err != nil {
		return err
	}

	if err := a.config.Load(initialLocalizer); err != nil {
		a.logger.Errorw("Failed to load config during initialization", "error", err)
		return fmt.Errorf("load config during init: %w", err)
	}

	if err := a.updateLocalizer(); err != nil {
		a.logger.Errorw("Failed to update localizer", "error", err)
		return fmt.Errorf("update localizer: %w", err)
	}

	if err := a.setupComponents(); err != nil {
		return err
	}

	a.setupInterruptHandler()
	a.run()

	return nil
}

func (a *AudioFx) setupComponents() error {
	store, err := prefs.NewFileStore(a.logger, a.config.PreferencesPath)
	if err != nil {
		a.logger.Errorw("Failed to open preferences", "path", a.config.PreferencesPath, "error", err)
		return fmt.Errorf("open preferences: %w", err)
	}
	a.store = store

	factory, err := newEffectsFactory(a.logger, a.config.Backend)
	if err != nil {
		a.logger.Errorw("Failed to create effects backend", "backend", a.config.Backend, "error", err)
		return fmt.Errorf("create effects backend: %w", err)
	}
	a.factory = factory

	deviceSource, err := newDeviceSource(a.logger)
	if err != nil {
		a.logger.Errorw("Failed to create DeviceSource", "error", err)
		return fmt.Errorf("create new DeviceSource: %w", err)
	}
	a.deviceSource = deviceSource
	a.tracker = NewOutputTracker(a.logger, deviceSource)

	a.devicePrefs = NewDevicePreferences(a.logger, store, factory, a.tracker)

	// without capabilities nothing downstream can be configured
	if err := a.devicePrefs.InitDefaults(a.config.ForceDefaults); err != nil {
		a.logger.Errorw("Failed to initialize default preferences", "error", err)

		localizer := a.currentLocalizer()
		a.notifier.Notify(
			localizer.MustLocalize(&i18n.LocalizeConfig{DefaultMessage: msgDefaultsFailedTitle}),
			localizer.MustLocalize(&i18n.LocalizeConfig{DefaultMessage: msgDefaultsFailedBody}),
		)

		return fmt.Errorf("init default preferences: %w", err)
	}

	a.obs = NewOBSClient(a.config, a.logger)

	detectors := []RecordingDetector{
		newProcessRecordingDetector(func() []string { return a.config.Recording.Processes }),
		a.obs,
	}
	detectors = append(detectors, newPlatformRecordingDetectors(a.logger)...)

	a.guard = newRecordingGuard(a.logger, func() RecordingPolicy { return a.config.Recording.Policy }, detectors)

	a.sessions = newSessionManager(a.logger, factory, a.devicePrefs, nil,
		withAttachGuard(a.guard),
		withQueueWarning(a.config.QueueSizeWarning))

	a.controller = NewController(a.logger, a.devicePrefs, a.sessions, a.events)

	sessionSource, err := newSessionSource(a.logger)
	if err != nil {
		a.logger.Errorw("Failed to create SessionSource", "error", err)
		return fmt.Errorf("create new SessionSource: %w", err)
	}
	a.sessionSource = sessionSource

	return nil
}

func newEffectsFactory(logger *zap.SugaredLogger, backend string) (effects.Factory, error) {
	switch backend {
	case "", defaultBackend:
		return memfx.NewFactory(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, backend)
	}
}

func (a *AudioFx) GetSystemLocalizer() (*i18n.Localizer, error) {
	lang, err := locale.GetLanguage()
	if err != nil {
		return nil, fmt.Errorf("get system locale: %w", err)
	}
	return i18n.NewLocalizer(a.bundle, lang, "en"), nil
}

func (a *AudioFx) updateLocalizer() error {
	lang := a.config.Language
	if lang == "auto" {
		var err error
		lang, err = locale.GetLanguage()

		if err != nil {
			a.logger.Errorw("Failed to get system locale", "error", err)
			return fmt.Errorf("get system locale: %w", err)
		}
	}
	a.logger.Infof("Selected language: %s", lang)

	a.locLock.Lock()
	a.localizer = i18n.NewLocalizer(a.bundle, lang, "en")
	a.locLock.Unlock()

	return nil
}

func (a *AudioFx) currentLocalizer() *i18n.Localizer {
	a.locLock.RLock()
	defer a.locLock.RUnlock()

	return a.localizer
}

// Controls returns the entry point for front ends changing effect settings
func (a *AudioFx) Controls() *Controller {
	return a.controller
}

// Events returns the bus front ends subscribe to for state changes
func (a *AudioFx) Events() *EventBus {
	return a.events
}

// Verbose returns a boolean indicating whether audiofx is running in verbose mode
func (a *AudioFx) Verbose() bool {
	return a.verbose
}

func (a *AudioFx) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		a.logger.Debugw("Interrupted", "signal", signal)
		a.signalStop()
	}()
}

func (a *AudioFx) run() {
	a.logger.Info("Run loop starting")

	// watch the config file for changes
	go a.config.WatchConfigFileChanges(a.currentLocalizer())
	a.watchConfigReloads()

	// output changes must be consumed before the tracker reports the first one
	a.consumeOutputChanges(a.tracker.SubscribeToOutputChanges())

	// the guard needs a first reading before sessions start arriving
	a.obs.Start()
	a.guard.start()

	a.sessions.start()
	a.tracker.Register()

	a.consumeSessionEvents(a.sessionSource.SubscribeToSessionEvents())

	if err := a.store.Watch(a.ctx); err != nil {
		a.logger.Warnw("Failed to watch preferences file, external edits won't apply", "error", err)
	} else {
		a.consumePreferenceChanges(a.store.SubscribeToChanges())
	}

	// wait until stopped (gracefully)
	<-a.stopChannel
	a.logger.Debug("Stop channel signaled, terminating")

	if err := a.stop(); err != nil {
		a.logger.Warnw("Failed to stop audiofx", "error", err)
		os.Exit(1)
	}

	// exit with 0
	os.Exit(0)
}

func (a *AudioFx) consumeOutputChanges(changes <-chan DeviceChange) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		for {
			select {
			case <-a.ctx.Done():
				return
			case change := <-changes:
				a.onOutputChanged(change)
			}
		}
	}()
}

func (a *AudioFx) onOutputChanged(change DeviceChange) {
	identity := device.Identity(change.Device)
	displayName := a.displayName(change.Device)

	a.sessions.OnAudioOutputChanged(change.Device)

	a.events.Publish(DeviceChangedEvent{
		Device:      change.Device,
		Identity:    identity,
		DisplayName: displayName,
		FirstChange: change.FirstChange,
	})

	capitan.Emit(a.ctx, OutputDeviceChanged,
		KeyDeviceID.Field(change.Device.ID),
		KeyIdentity.Field(identity),
	)

	if change.FirstChange || !a.config.Notifications.DeviceChange {
		return
	}

	localizer := a.currentLocalizer()
	a.notifier.Notify(
		localizer.MustLocalize(&i18n.LocalizeConfig{DefaultMessage: msgDeviceChangedTitle}),
		localizer.MustLocalize(&i18n.LocalizeConfig{
			DefaultMessage: msgDeviceChangedBody,
			TemplateData:   map[string]string{"Name": displayName},
		}),
	)
}

// displayName prefers the product name and falls back to a localized type
func (a *AudioFx) displayName(dev *device.Info) string {
	if dev != nil && dev.ProductName != "" {
		return dev.ProductName
	}

	message := msgDeviceUnknown
	if dev != nil {
		switch dev.Type {
		case device.TypeBuiltinSpeaker:
			message = msgDeviceSpeaker
		case device.TypeWiredHeadset, device.TypeWiredHeadphones:
			message = msgDeviceHeadset
		case device.TypeLineAnalog, device.TypeLineDigital:
			message = msgDeviceLineOut
		case device.TypeUSBDevice, device.TypeUSBAccessory, device.TypeDock:
			message = msgDeviceUSB
		case device.TypeBluetoothA2DP, device.TypeBluetoothSCO:
			message = msgDeviceBluetooth
		case device.TypeIP:
			message = msgDeviceWireless
		case device.TypeHDMI:
			message = msgDeviceHDMI
		}
	}

	return a.currentLocalizer().MustLocalize(&i18n.LocalizeConfig{DefaultMessage: message})
}

func (a *AudioFx) consumeSessionEvents(events <-chan SessionEvent) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		for {
			select {
			case <-a.ctx.Done():
				return
			case event := <-events:
				a.logger.Debugw("Session event", "type", event.Type, "id", event.ID, "name", event.Name)

				switch event.Type {
				case SessionOpened:
					a.sessions.AddSession(event.ID)
				case SessionClosed:
					a.sessions.RemoveSession(event.ID)
				}
			}
		}
	}()
}

// external edits to the preferences file reapply everything
func (a *AudioFx) consumePreferenceChanges(changes <-chan struct{}) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		for {
			select {
			case <-a.ctx.Done():
				return
			case <-changes:
				a.logger.Info("Preferences changed on disk, reapplying")
				a.sessions.Update(effects.AllChanged)
			}
		}
	}()
}

func (a *AudioFx) watchConfigReloads() {
	configReloadedChannel := a.config.SubscribeToChanges()

	go func() {
		for range configReloadedChannel {
			if err := a.updateLocalizer(); err != nil {
				a.logger.Warnw("Failed to update localizer after config reload", "error", err)
			}
		}
	}()
}

func (a *AudioFx) signalStop() {
	a.logger.Debug("Signalling stop channel")
	a.stopChannel <- true
}

func (a *AudioFx) stop() error {
	a.logger.Info("Stopping")

	a.config.StopWatchingConfigFile()
	a.guard.stop()
	a.obs.Stop()

	var errs []error

	if err := a.sessionSource.Release(); err != nil {
		a.logger.Errorw("Failed to release session source", "error", err)
		errs = append(errs, fmt.Errorf("release session source: %w", err))
	}

	a.tracker.Unregister()
	a.cancel()
	a.wg.Wait()

	// releases every remaining handle
	a.sessions.stop()

	if err := a.deviceSource.Release(); err != nil {
		a.logger.Errorw("Failed to release device source", "error", err)
		errs = append(errs, fmt.Errorf("release device source: %w", err))
	}

	capitan.Shutdown()

	// attempt to sync on exit - this won't necessarily work but can't harm
	_ = a.logger.Sync()

	return errors.Join(errs...)
}
