package audiofx

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
)

// Event is anything published on the EventBus
type Event interface {
	eventName() string
}

// DeviceChangedEvent is published once per confirmed output change
type DeviceChangedEvent struct {
	Device      *device.Info
	Identity    string
	DisplayName string
	FirstChange bool
}

type BandLevelChangedEvent struct {
	Band  int
	Level float32
}

type PresetChangedEvent struct {
	Index int
	Name  string
}

type GlobalEnabledChangedEvent struct {
	Enabled bool
}

func (DeviceChangedEvent) eventName() string        { return "device_changed" }
func (BandLevelChangedEvent) eventName() string     { return "band_level_changed" }
func (PresetChangedEvent) eventName() string        { return "preset_changed" }
func (GlobalEnabledChangedEvent) eventName() string { return "global_enabled_changed" }

const eventChanSize = 32

// EventBus fans events out to subscriber channels. A subscriber that falls
// behind loses events instead of stalling the publisher.
type EventBus struct {
	logger *zap.SugaredLogger

	lock      sync.Mutex
	consumers []chan Event
}

func NewEventBus(logger *zap.SugaredLogger) *EventBus {
	logger = logger.Named("events")

	b := &EventBus{logger: logger}

	logger.Debug("Created event bus instance")

	return b
}

func (b *EventBus) Subscribe() <-chan Event {
	b.lock.Lock()
	defer b.lock.Unlock()

	c := make(chan Event, eventChanSize)
	b.consumers = append(b.consumers, c)

	return c
}

// Unsubscribe closes and forgets a channel returned by Subscribe
func (b *EventBus) Unsubscribe(c <-chan Event) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for idx, consumer := range b.consumers {
		if consumer == c {
			close(consumer)
			b.consumers = append(b.consumers[:idx], b.consumers[idx+1:]...)
			return
		}
	}
}

func (b *EventBus) Publish(event Event) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, consumer := range b.consumers {
		select {
		case consumer <- event:
		default:
			b.logger.Warnw("Dropping event for slow subscriber", "event", event.eventName())
		}
	}
}
