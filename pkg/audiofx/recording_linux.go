package audiofx

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse/proto"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

// level meters and volume mixers open capture streams without recording
var ignoredCaptureApplications = []string{
	"org.PulseAudio.pavucontrol",
	"org.pipewire.Helvum",
	"com.saivert.pwvucontrol",
}

const monitorSourceSuffix = ".monitor"

// paRecordingDetector inspects PulseAudio source outputs
type paRecordingDetector struct {
	logger *zap.SugaredLogger

	mu     sync.Mutex
	client *proto.Client
	conn   net.Conn
}

func newPlatformRecordingDetectors(logger *zap.SugaredLogger) []RecordingDetector {
	detector := &paRecordingDetector{logger: logger.Named("recording")}
	return []RecordingDetector{detector}
}

func (d *paRecordingDetector) Name() string {
	return "pulseaudio"
}

func (d *paRecordingDetector) connect() (*proto.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}

	client, conn, err := proto.Connect("")
	if err != nil {
		return nil, fmt.Errorf("connect to PulseAudio: %w", err)
	}

	if err := client.Request(&proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString("audiofx-recording"),
		},
	}, &proto.SetClientNameReply{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set client name: %w", err)
	}

	d.client = client
	d.conn = conn

	return client, nil
}

func (d *paRecordingDetector) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		d.conn.Close()
	}
	d.client = nil
	d.conn = nil
}

func (d *paRecordingDetector) RecordingState() (RecordingState, error) {
	client, err := d.connect()
	if err != nil {
		return RecordingState{}, err
	}

	outputs := proto.GetSourceOutputInfoListReply{}
	if err := client.Request(&proto.GetSourceOutputInfoList{}, &outputs); err != nil {
		d.reset()
		return RecordingState{}, fmt.Errorf("list source outputs: %w", err)
	}

	state := RecordingState{}

	for _, output := range outputs {
		if app, ok := output.Properties["application.id"]; ok &&
			funk.ContainsString(ignoredCaptureApplications, app.String()) {
			continue
		}

		state.Active = true

		source := proto.GetSourceInfoReply{}
		if err := client.Request(&proto.GetSourceInfo{SourceIndex: output.SourceIndex}, &source); err != nil {
			d.logger.Debugw("Failed to get capture source info", "source", output.SourceIndex, "error", err)
			continue
		}

		if strings.HasSuffix(source.SourceName, monitorSourceSuffix) {
			state.Privileged = true
			return state, nil
		}
	}

	return state, nil
}
