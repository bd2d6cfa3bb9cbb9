package audiofx

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
)

// DeviceSource reports connected output devices. The change channel carries
// no payload; receivers re-query Devices.
type DeviceSource interface {
	Devices() ([]device.Info, error)
	SubscribeToDeviceChanges() <-chan struct{}
	Release() error
}

// DeviceChange is delivered once per distinct output device
type DeviceChange struct {
	Device      *device.Info
	Previous    *device.Info
	FirstChange bool
}

// OutputTracker follows the best output device and tells subscribers when it
// changes
type OutputTracker struct {
	logger *zap.SugaredLogger
	source DeviceSource

	lock      sync.Mutex
	current   *device.Info
	previous  *device.Info
	evaluated bool
	consumers []chan DeviceChange

	// serializes evaluations so deliveries keep their order
	evalLock sync.Mutex

	stopChannel chan struct{}
	wg          sync.WaitGroup
}

const deviceChangeChanSize = 8

func NewOutputTracker(logger *zap.SugaredLogger, source DeviceSource) *OutputTracker {
	logger = logger.Named("output")

	t := &OutputTracker{
		logger: logger,
		source: source,
	}

	logger.Debug("Created output tracker instance")

	return t
}

// SubscribeToOutputChanges must be called before Register to see the first
// evaluation
func (t *OutputTracker) SubscribeToOutputChanges() <-chan DeviceChange {
	t.lock.Lock()
	defer t.lock.Unlock()

	c := make(chan DeviceChange, deviceChangeChanSize)
	t.consumers = append(t.consumers, c)

	return c
}

// Register evaluates the current device right away and then follows changes
func (t *OutputTracker) Register() {
	t.lock.Lock()
	if t.stopChannel != nil {
		t.lock.Unlock()
		return
	}
	t.stopChannel = make(chan struct{})
	stop := t.stopChannel
	t.lock.Unlock()

	changes := t.source.SubscribeToDeviceChanges()

	t.evaluate()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		for {
			select {
			case <-stop:
				return
			case _, ok := <-changes:
				if !ok {
					t.logger.Debug("Device source closed its change channel")
					return
				}
				t.evaluate()
			}
		}
	}()

	t.logger.Debug("Registered for device changes")
}

func (t *OutputTracker) Unregister() {
	t.lock.Lock()
	stop := t.stopChannel
	t.stopChannel = nil
	t.lock.Unlock()

	if stop == nil {
		return
	}

	close(stop)
	t.wg.Wait()

	t.logger.Debug("Unregistered from device changes")
}

// CurrentDevice is nil until the first successful evaluation
func (t *OutputTracker) CurrentDevice() *device.Info {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.current
}

func (t *OutputTracker) PreviousDevice() *device.Info {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.previous
}

func (t *OutputTracker) evaluate() {
	t.evalLock.Lock()
	defer t.evalLock.Unlock()

	devices, err := t.source.Devices()
	if err != nil {
		t.logger.Warnw("Failed to query output devices", "error", err)
		return
	}

	best, ok := device.Best(devices)
	if !ok {
		t.logger.Warn("Unable to determine audio device")
		return
	}

	t.lock.Lock()
	firstChange := !t.evaluated
	if !firstChange && t.current.Equal(&best) {
		t.lock.Unlock()
		return
	}

	change := DeviceChange{
		Device:      &best,
		Previous:    t.current,
		FirstChange: firstChange,
	}

	t.previous = t.current
	t.current = &best
	t.evaluated = true
	consumers := t.consumers
	stop := t.stopChannel
	t.lock.Unlock()

	t.logger.Infow("Audio output changed",
		"device", change.Device,
		"identity", device.Identity(change.Device),
		"firstChange", firstChange)

	for _, consumer := range consumers {
		select {
		case consumer <- change:
		case <-stop:
			return
		}
	}
}
