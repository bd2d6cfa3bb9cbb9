package audiofx

import "go.uber.org/zap"

// capture streams aren't enumerated on Windows; process and OBS detection
// still apply
func newPlatformRecordingDetectors(_ *zap.SugaredLogger) []RecordingDetector {
	return nil
}
