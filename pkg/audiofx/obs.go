package audiofx

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andreykaipov/goobs"
	"go.uber.org/zap"
)

// OBSClient keeps a connection to OBS so recording status can be checked
// before effects are attached
type OBSClient struct {
	config *CanonicalConfig
	logger *zap.SugaredLogger

	client *goobs.Client
	lock   sync.Mutex

	stopChannel chan struct{}
	errChannel  chan error
	wg          sync.WaitGroup

	// config values at time of connection
	hostConfig     string
	portConfig     int
	passwordConfig string
}

const (
	obsRetryDelay = 5 * time.Second
)

func NewOBSClient(config *CanonicalConfig, logger *zap.SugaredLogger) *OBSClient {
	logger = logger.Named("obs")

	o := &OBSClient{
		config:     config,
		logger:     logger,
		errChannel: make(chan error, 1),
	}

	logger.Debug("Created OBS client instance")

	o.setupOnConfigReload()

	return o
}

func (o *OBSClient) Start() {
	o.stopChannel = make(chan struct{})
	o.logger.Info("OBS client starting")

	o.wg.Add(1)
	go o.managerLoop()
}

func (o *OBSClient) Stop() {
	if o.stopChannel == nil {
		return
	}

	close(o.stopChannel)
	o.wg.Wait()

	o.logger.Info("OBS client stopped")
}

func (o *OBSClient) IsConnected() bool {
	o.lock.Lock()
	defer o.lock.Unlock()

	return o.client != nil
}

func (o *OBSClient) Name() string {
	return "obs"
}

// RecordingState reports OBS recording as privileged capture since OBS
// records desktop audio. A disconnected client reports nothing.
func (o *OBSClient) RecordingState() (RecordingState, error) {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.client == nil {
		return RecordingState{}, nil
	}

	resp, err := o.client.Record.GetRecordStatus()
	if err != nil {
		o.signalError(err)
		return RecordingState{}, fmt.Errorf("get OBS record status: %w", err)
	}

	return RecordingState{Active: resp.OutputActive, Privileged: resp.OutputActive}, nil
}

func (o *OBSClient) signalError(err error) {
	select {
	case o.errChannel <- err:
	default:
		// channel full, error already pending
	}
}

func (o *OBSClient) connect() error {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.client != nil {
		return fmt.Errorf("already connected")
	}

	cfg := o.config.Recording.OBS
	address := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	o.logger.Debugw("Attempting OBS connection", "address", address)

	opts := []goobs.Option{}
	if cfg.Password != "" {
		opts = append(opts, goobs.WithPassword(cfg.Password))
	}

	client, err := goobs.New(address, opts...)
	if err != nil {
		o.logger.Debugw("Failed to connect to OBS", "error", err)
		return fmt.Errorf("connect to OBS: %w", err)
	}

	o.client = client
	o.hostConfig = cfg.Host
	o.portConfig = cfg.Port
	o.passwordConfig = cfg.Password

	o.logger.Info("Connected to OBS")

	return nil
}

func (o *OBSClient) disconnect() {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.client == nil {
		return
	}

	_ = o.client.Disconnect()
	o.client = nil

	o.logger.Info("Disconnected from OBS")
}

func (o *OBSClient) waitOrStop(d time.Duration) bool {
	select {
	case <-o.stopChannel:
		o.logger.Debug("managerLoop: stop signal")
		return false
	case <-time.After(d):
		return true
	}
}

func (o *OBSClient) managerLoop() {
	defer o.wg.Done()

	for {
		if !o.config.Recording.OBS.Enabled {
			if !o.waitOrStop(obsRetryDelay) {
				return
			}
			continue
		}

		// connect in a goroutine so a stop signal isn't held up by a slow dial
		connectResult := make(chan error, 1)
		go func() {
			connectResult <- o.connect()
		}()

		select {
		case <-o.stopChannel:
			o.logger.Debug("managerLoop: stop signal during connect")
			if err := <-connectResult; err == nil {
				o.disconnect()
			}
			return

		case err := <-connectResult:
			if err != nil {
				o.logger.Debugw("OBS connection error, retrying", "error", err)
				if !o.waitOrStop(obsRetryDelay) {
					return
				}
				continue
			}
		}

		if !o.config.Recording.OBS.Enabled {
			o.logger.Debug("OBS disabled while connecting, disconnecting")
			o.disconnect()
			continue
		}

		// drain any stale errors from previous connection
		select {
		case <-o.errChannel:
		default:
		}

		o.wg.Add(1)
		go o.eventLoop()

		select {
		case <-o.stopChannel:
			o.logger.Debug("managerLoop: stop signal")
			o.disconnect()
			return

		case err := <-o.errChannel:
			o.logger.Warnw("OBS connection error, reconnecting", "error", err)
			o.disconnect()
			if !o.waitOrStop(obsRetryDelay) {
				return
			}
		}
	}
}

func (o *OBSClient) eventLoop() {
	defer o.wg.Done()

	o.lock.Lock()
	client := o.client
	o.lock.Unlock()

	if client == nil {
		return
	}

	for {
		select {
		case <-o.stopChannel:
			return
		case _, ok := <-client.IncomingEvents:
			if !ok {
				o.signalError(errors.New("OBS connection closed"))
				return
			}
		}
	}
}

func (o *OBSClient) setupOnConfigReload() {
	configReloadedChannel := o.config.SubscribeToChanges()

	go func() {
		for range configReloadedChannel {
			if !o.IsConnected() {
				continue
			}

			cfg := o.config.Recording.OBS

			if cfg.Host != o.hostConfig ||
				cfg.Port != o.portConfig ||
				cfg.Password != o.passwordConfig ||
				!cfg.Enabled {

				o.logger.Debug("OBS config changed, triggering reconnect")
				o.signalError(errors.New("config changed"))
			}
		}
	}()
}
