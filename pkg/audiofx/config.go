package audiofx

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nik9play/audiofx/pkg/audiofx/util"
	"github.com/nik9play/audiofx/pkg/notify"
)

// CanonicalConfig provides application-wide access to configuration fields,
// as well as loading/file watching logic for audiofx's configuration file
type CanonicalConfig struct {
	PreferencesPath  string
	Language         string
	ForceDefaults    bool
	Backend          string
	QueueSizeWarning int

	Recording     RecordingConfig
	Notifications NotificationConfig

	logger             *zap.SugaredLogger
	notifier           notify.Notifier
	stopWatcherChannel chan bool

	reloadConsumers []chan bool
	lock            sync.Mutex

	configPath string
	userConfig *viper.Viper
}

type RecordingConfig struct {
	Policy    RecordingPolicy
	Processes []string
	OBS       OBSConfig
}

type OBSConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
}

type NotificationConfig struct {
	DeviceChange bool
}

const (
	defaultConfigFilepath = "config.yaml"

	configKeyPreferencesPath     = "preferences_path"
	configKeyLanguage            = "language"
	configKeyForceDefaults       = "force_defaults"
	configKeyBackend             = "backend"
	configKeyQueueSizeWarning    = "queue_size_warning"
	configKeyRecordingPolicy     = "recording.policy"
	configKeyRecordingProcesses  = "recording.processes"
	configKeyOBSEnabled          = "recording.obs.enabled"
	configKeyOBSHost             = "recording.obs.host"
	configKeyOBSPort             = "recording.obs.port"
	configKeyOBSPassword         = "recording.obs.password"
	configKeyNotifyDeviceChanges = "notifications.device_change"

	defaultPreferencesPath = "preferences.toml"
	defaultBackend         = "memfx"
)

// NewConfig creates a config instance for the audiofx object and sets up viper instances for audiofx's config files
func NewConfig(logger *zap.SugaredLogger, notifier notify.Notifier, configPath string) (*CanonicalConfig, error) {
	logger = logger.Named("config")

	if configPath == "" {
		configPath = defaultConfigFilepath
	}

	cc := &CanonicalConfig{
		logger:             logger,
		notifier:           notifier,
		reloadConsumers:    []chan bool{},
		stopWatcherChannel: make(chan bool),
		configPath:         configPath,
	}

	// distinguish between the user-provided config (config.yaml) and the defaults
	userConfig := viper.New()
	userConfig.SetConfigFile(configPath)
	userConfig.SetConfigType(strings.TrimPrefix(filepath.Ext(configPath), "."))

	userConfig.SetDefault(configKeyPreferencesPath, defaultPreferencesPath)
	userConfig.SetDefault(configKeyLanguage, "auto")
	userConfig.SetDefault(configKeyForceDefaults, false)
	userConfig.SetDefault(configKeyBackend, defaultBackend)
	userConfig.SetDefault(configKeyQueueSizeWarning, defaultQueueWarning)
	userConfig.SetDefault(configKeyRecordingPolicy, string(PolicySuppressPrivileged))
	userConfig.SetDefault(configKeyRecordingProcesses, []string{})
	userConfig.SetDefault(configKeyOBSEnabled, false)
	userConfig.SetDefault(configKeyOBSHost, "localhost")
	userConfig.SetDefault(configKeyOBSPort, 4455)
	userConfig.SetDefault(configKeyOBSPassword, "")
	userConfig.SetDefault(configKeyNotifyDeviceChanges, true)

	cc.userConfig = userConfig

	logger.Debug("Created config instance")

	return cc, nil
}

// Load reads audiofx's config file from disk and tries to parse it
func (cc *CanonicalConfig) Load(localizer *i18n.Localizer) error {
	cc.logger.Debugw("Loading config", "path", cc.configPath)

	// a missing file is fine, we run on defaults
	if !util.FileExists(cc.configPath) {
		cc.logger.Warnw("Config file not found, using defaults", "path", cc.configPath)
	} else if err := cc.userConfig.ReadInConfig(); err != nil {
		cc.logger.Warnw("Viper failed to read user config", "error", err)

		if localizer != nil {
			cc.notifier.Notify(
				localizer.MustLocalize(&i18n.LocalizeConfig{DefaultMessage: msgConfigInvalidTitle}),
				localizer.MustLocalize(&i18n.LocalizeConfig{DefaultMessage: msgConfigInvalidBody}),
			)
		}

		return fmt.Errorf("read user config: %w", err)
	}

	if err := cc.populateFromVipers(); err != nil {
		cc.logger.Warnw("Failed to populate config fields", "error", err)
		return fmt.Errorf("populate config fields: %w", err)
	}

	cc.logger.Info("Loaded config successfully")
	cc.logger.Infow("Config values",
		"preferencesPath", cc.PreferencesPath,
		"backend", cc.Backend,
		"recordingPolicy", cc.Recording.Policy,
		"recordingProcesses", cc.Recording.Processes,
		"obsEnabled", cc.Recording.OBS.Enabled,
		"language", cc.Language)

	return nil
}

// SubscribeToChanges allows external components to receive updates when the config is reloaded
func (cc *CanonicalConfig) SubscribeToChanges() chan bool {
	cc.lock.Lock()
	defer cc.lock.Unlock()

	c := make(chan bool)
	cc.reloadConsumers = append(cc.reloadConsumers, c)

	return c
}

// WatchConfigFileChanges starts watching for configuration file changes
// and attempts reloading the config when they happen
func (cc *CanonicalConfig) WatchConfigFileChanges(localizer *i18n.Localizer) {
	cc.logger.Debugw("Starting to watch user config file for changes", "path", cc.configPath)

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	// establish watch using viper as opposed to doing it ourselves, though our internal cooldown is still required
	cc.userConfig.WatchConfig()
	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {

		// when we get a write event...
		if event.Op&fsnotify.Write == fsnotify.Write {

			now := time.Now()

			// ... check if it's not a duplicate (many editors will write to a file twice)
			if lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {

				// and attempt reload if appropriate
				cc.logger.Debugw("Config file modified, attempting reload", "event", event)

				// wait a bit to let the editor actually flush the new file contents to disk
				<-time.After(delayBetweenEventAndReload)

				if err := cc.Load(localizer); err != nil {
					cc.logger.Warnw("Failed to reload config file", "error", err)
				} else {
					cc.logger.Info("Reloaded config successfully")

					cc.notifier.Notify(
						localizer.MustLocalize(&i18n.LocalizeConfig{DefaultMessage: msgConfigReloadedTitle}),
						localizer.MustLocalize(&i18n.LocalizeConfig{DefaultMessage: msgConfigReloadedBody}),
					)

					cc.onConfigReloaded()
				}

				// don't forget to update the time
				lastAttemptedReload = now
			}
		}
	})

	// wait till they stop us
	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping user config file watcher")
	cc.userConfig.OnConfigChange(nil)
}

// StopWatchingConfigFile signals our filesystem watcher to stop
func (cc *CanonicalConfig) StopWatchingConfigFile() {
	cc.stopWatcherChannel <- true
}

func (cc *CanonicalConfig) populateFromVipers() error {
	cc.PreferencesPath = cc.userConfig.GetString(configKeyPreferencesPath)
	cc.Language = cc.userConfig.GetString(configKeyLanguage)
	cc.ForceDefaults = cc.userConfig.GetBool(configKeyForceDefaults)
	cc.Backend = strings.ToLower(cc.userConfig.GetString(configKeyBackend))
	cc.QueueSizeWarning = cc.userConfig.GetInt(configKeyQueueSizeWarning)

	policy := RecordingPolicy(strings.ToLower(cc.userConfig.GetString(configKeyRecordingPolicy)))
	if !policy.valid() {
		cc.logger.Warnw("Invalid recording policy, falling back to default",
			"policy", policy,
			"default", PolicySuppressPrivileged)
		policy = PolicySuppressPrivileged
	}

	cc.Recording = RecordingConfig{
		Policy:    policy,
		Processes: cc.userConfig.GetStringSlice(configKeyRecordingProcesses),
		OBS: OBSConfig{
			Enabled:  cc.userConfig.GetBool(configKeyOBSEnabled),
			Host:     cc.userConfig.GetString(configKeyOBSHost),
			Port:     cc.userConfig.GetInt(configKeyOBSPort),
			Password: cc.userConfig.GetString(configKeyOBSPassword),
		},
	}

	cc.Notifications = NotificationConfig{
		DeviceChange: cc.userConfig.GetBool(configKeyNotifyDeviceChanges),
	}

	if cc.PreferencesPath == "" {
		return fmt.Errorf("%s must not be empty", configKeyPreferencesPath)
	}

	if cc.Recording.OBS.Port <= 0 || cc.Recording.OBS.Port > 65535 {
		return fmt.Errorf("invalid %s: %d", configKeyOBSPort, cc.Recording.OBS.Port)
	}

	cc.logger.Debug("Populated config fields from vipers")

	return nil
}

func (cc *CanonicalConfig) onConfigReloaded() {
	cc.logger.Debug("Notifying consumers about configuration reload")

	cc.lock.Lock()
	consumers := cc.reloadConsumers
	cc.lock.Unlock()

	for _, consumer := range consumers {
		consumer <- true
	}
}
