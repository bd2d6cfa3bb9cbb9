package audiofx

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jfreymuth/pulse/proto"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

// paSessionSource turns PulseAudio sink inputs into session events. Session
// IDs are sink input indices shifted by one so index 0 stays valid.
type paSessionSource struct {
	logger *zap.SugaredLogger

	mu         sync.RWMutex
	client     *proto.Client
	conn       net.Conn
	sinkInputs map[uint32]string
	closed     bool

	sessionEvents chan SessionEvent
}

func newSessionSource(logger *zap.SugaredLogger) (SessionSource, error) {
	ss := &paSessionSource{
		logger:        logger.Named("session_source"),
		sinkInputs:    make(map[uint32]string),
		sessionEvents: make(chan SessionEvent, sessionEventChanSize),
	}

	if err := ss.connect(); err != nil {
		return nil, err
	}

	ss.logger.Debug("Created event-driven PA session source")
	return ss, nil
}

func (ss *paSessionSource) connect() error {
	client, conn, err := proto.Connect("")
	if err != nil {
		return fmt.Errorf("connect to PulseAudio: %w", err)
	}

	if err := client.Request(&proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString("audiofx-sessions"),
		},
	}, &proto.SetClientNameReply{}); err != nil {
		conn.Close()
		return fmt.Errorf("set client name: %w", err)
	}

	ss.mu.Lock()
	ss.client = client
	ss.conn = conn
	ss.mu.Unlock()

	ss.enumerateExistingSessions()

	client.Callback = ss.onPulseEvent
	if err := client.Request(&proto.Subscribe{
		Mask: proto.SubscriptionMaskSinkInput,
	}, nil); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to events: %w", err)
	}

	return nil
}

func (ss *paSessionSource) reconnect() {
	ss.mu.Lock()
	if ss.closed {
		ss.mu.Unlock()
		return
	}

	// everything we knew about is gone with the old connection
	for index, name := range ss.sinkInputs {
		ss.emitEvent(SessionEvent{Type: SessionClosed, ID: sinkInputSessionID(index), Name: name})
	}
	ss.sinkInputs = make(map[uint32]string)

	if ss.conn != nil {
		ss.conn.Close()
	}
	ss.client = nil
	ss.conn = nil
	ss.mu.Unlock()

	for {
		ss.logger.Info("Attempting to reconnect to PulseAudio...")
		if err := ss.connect(); err != nil {
			ss.logger.Warnw("Reconnect failed, retrying", "error", err)
			time.Sleep(reconnectDelay)

			ss.mu.RLock()
			closed := ss.closed
			ss.mu.RUnlock()
			if closed {
				return
			}
			continue
		}
		ss.logger.Info("Reconnected to PulseAudio")
		return
	}
}

func (ss *paSessionSource) onPulseEvent(msg interface{}) {
	switch v := msg.(type) {
	case *proto.SubscribeEvent:
		if v.Event.GetFacility() != proto.EventSinkSinkInput {
			return
		}

		switch v.Event.GetType() {
		case proto.EventNew:
			go ss.addSinkInput(v.Index)
		case proto.EventRemove:
			go ss.removeSinkInput(v.Index)
		}

	case *proto.ConnectionClosed:
		ss.logger.Warn("PulseAudio connection closed")
		go ss.reconnect()
	}
}

func (ss *paSessionSource) enumerateExistingSessions() {
	ss.mu.RLock()
	client := ss.client
	ss.mu.RUnlock()
	if client == nil {
		return
	}

	reply := proto.GetSinkInputInfoListReply{}
	if err := client.Request(&proto.GetSinkInputInfoList{}, &reply); err != nil {
		ss.logger.Warnw("Failed to enumerate sessions", "error", err)
		return
	}

	for _, info := range reply {
		ss.addSinkInputFromInfo(info)
	}
	ss.logger.Debugw("Enumerated sessions", "count", len(reply))
}

func (ss *paSessionSource) addSinkInput(index uint32) {
	ss.mu.RLock()
	client := ss.client
	ss.mu.RUnlock()
	if client == nil {
		return
	}

	reply := proto.GetSinkInputInfoReply{}
	if err := client.Request(&proto.GetSinkInputInfo{SinkInputIndex: index}, &reply); err != nil {
		ss.logger.Debugw("Failed to get sink input info", "index", index, "error", err)
		return
	}
	ss.addSinkInputFromInfo(&reply)
}

func (ss *paSessionSource) addSinkInputFromInfo(info *proto.GetSinkInputInfoReply) {
	if role, ok := info.Properties["media.role"]; ok && funk.ContainsString(ignoredMediaRoles, role.String()) {
		ss.logger.Debugw("Skipping sink input with ignored role",
			"index", info.SinkInputIndex,
			"role", role.String())
		return
	}

	name := propString(info.Properties, "application.process.binary")
	if name == "" {
		name = propString(info.Properties, "application.name")
	}

	ss.mu.Lock()
	if _, exists := ss.sinkInputs[info.SinkInputIndex]; exists {
		ss.mu.Unlock()
		return
	}
	ss.sinkInputs[info.SinkInputIndex] = name
	ss.mu.Unlock()

	ss.emitEvent(SessionEvent{Type: SessionOpened, ID: sinkInputSessionID(info.SinkInputIndex), Name: name})
	ss.logger.Debugw("Session opened", "index", info.SinkInputIndex, "name", name)
}

func (ss *paSessionSource) removeSinkInput(index uint32) {
	ss.mu.Lock()
	name, exists := ss.sinkInputs[index]
	if !exists {
		ss.mu.Unlock()
		return
	}
	delete(ss.sinkInputs, index)
	ss.mu.Unlock()

	ss.emitEvent(SessionEvent{Type: SessionClosed, ID: sinkInputSessionID(index), Name: name})
	ss.logger.Debugw("Session closed", "index", index)
}

func (ss *paSessionSource) emitEvent(event SessionEvent) {
	select {
	case ss.sessionEvents <- event:
	default:
		ss.logger.Warnw("Session event channel full, dropping event", "event", event)
	}
}

func (ss *paSessionSource) SubscribeToSessionEvents() <-chan SessionEvent {
	return ss.sessionEvents
}

func (ss *paSessionSource) Release() error {
	ss.mu.Lock()
	ss.closed = true
	conn := ss.conn
	ss.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("close PulseAudio connection: %w", err)
		}
	}
	ss.logger.Debug("Released PA session source")
	return nil
}

func sinkInputSessionID(index uint32) int {
	return int(index) + 1
}
