package audiofx

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
)

const reconnectDelay = 2 * time.Second

// paDeviceSource reports the default PulseAudio sink as the current output
type paDeviceSource struct {
	logger *zap.SugaredLogger

	mu     sync.RWMutex
	client *proto.Client
	conn   net.Conn
	closed bool

	changes chan struct{}
}

func newDeviceSource(logger *zap.SugaredLogger) (DeviceSource, error) {
	ds := &paDeviceSource{
		logger:  logger.Named("device_source"),
		changes: make(chan struct{}, 1),
	}

	if err := ds.connect(); err != nil {
		return nil, err
	}

	ds.logger.Debug("Created PA device source")
	return ds, nil
}

func (ds *paDeviceSource) connect() error {
	client, conn, err := proto.Connect("")
	if err != nil {
		return fmt.Errorf("connect to PulseAudio: %w", err)
	}

	if err := client.Request(&proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString("audiofx"),
		},
	}, &proto.SetClientNameReply{}); err != nil {
		conn.Close()
		return fmt.Errorf("set client name: %w", err)
	}

	ds.mu.Lock()
	ds.client = client
	ds.conn = conn
	ds.mu.Unlock()

	client.Callback = ds.onPulseEvent
	if err := client.Request(&proto.Subscribe{
		Mask: proto.SubscriptionMaskSink | proto.SubscriptionMaskServer,
	}, nil); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to events: %w", err)
	}

	return nil
}

func (ds *paDeviceSource) reconnect() {
	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		return
	}

	if ds.conn != nil {
		ds.conn.Close()
	}
	ds.client = nil
	ds.conn = nil
	ds.mu.Unlock()

	for {
		ds.logger.Info("Attempting to reconnect to PulseAudio...")
		if err := ds.connect(); err != nil {
			ds.logger.Warnw("Reconnect failed, retrying", "error", err)
			time.Sleep(reconnectDelay)

			ds.mu.RLock()
			closed := ds.closed
			ds.mu.RUnlock()
			if closed {
				return
			}
			continue
		}

		ds.logger.Info("Reconnected to PulseAudio")

		// the default sink may have moved while we were away
		ds.signalChange()
		return
	}
}

func (ds *paDeviceSource) onPulseEvent(msg interface{}) {
	switch v := msg.(type) {
	case *proto.SubscribeEvent:
		switch v.Event.GetFacility() {
		case proto.EventSink, proto.EventServer:
			ds.signalChange()
		}

	case *proto.ConnectionClosed:
		ds.logger.Warn("PulseAudio connection closed")
		go ds.reconnect()
	}
}

// coalesces bursts of sink events into one pending signal
func (ds *paDeviceSource) signalChange() {
	select {
	case ds.changes <- struct{}{}:
	default:
	}
}

func (ds *paDeviceSource) Devices() ([]device.Info, error) {
	ds.mu.RLock()
	client := ds.client
	ds.mu.RUnlock()

	if client == nil {
		return nil, fmt.Errorf("not connected to PulseAudio")
	}

	reply := proto.GetSinkInfoReply{}
	if err := client.Request(&proto.GetSinkInfo{SinkIndex: proto.Undefined}, &reply); err != nil {
		return nil, fmt.Errorf("get default sink info: %w", err)
	}

	hints := device.Hints{
		ID:          int(reply.SinkIndex) + 1,
		Bus:         propString(reply.Properties, "device.bus"),
		FormFactor:  propString(reply.Properties, "device.form_factor"),
		Profile:     propString(reply.Properties, "device.profile.name") + " " + reply.SinkName,
		ProductName: propString(reply.Properties, "device.product.name"),
		Description: propString(reply.Properties, "device.description"),
	}

	if hints.Bus == "bluetooth" {
		hints.Address = propString(reply.Properties, "api.bluez5.address")
		if hints.Address == "" {
			hints.Address = propString(reply.Properties, "device.string")
		}
	}

	info := device.Classify(hints)

	ds.logger.Debugw("Resolved default sink",
		"sink", reply.SinkName,
		"device", &info)

	return []device.Info{info}, nil
}

func (ds *paDeviceSource) SubscribeToDeviceChanges() <-chan struct{} {
	return ds.changes
}

func (ds *paDeviceSource) Release() error {
	ds.mu.Lock()
	ds.closed = true
	conn := ds.conn
	ds.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("close PulseAudio connection: %w", err)
		}
	}

	ds.logger.Debug("Released PA device source")
	return nil
}

func propString(props proto.PropList, key string) string {
	value, ok := props[key]
	if !ok {
		return ""
	}
	return value.String()
}
