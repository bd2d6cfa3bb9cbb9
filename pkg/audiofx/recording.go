package audiofx

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-ps"
	"github.com/thoas/go-funk"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// RecordingPolicy decides which recordings block automatic attachment
type RecordingPolicy string

const (
	// PolicySuppressPrivileged blocks attachment while loopback or monitor
	// capture is running
	PolicySuppressPrivileged RecordingPolicy = "suppress_privileged"

	// PolicySuppressAny blocks attachment while anything is recording
	PolicySuppressAny RecordingPolicy = "suppress_any"

	PolicyIgnore RecordingPolicy = "ignore"
)

func (p RecordingPolicy) valid() bool {
	return funk.ContainsString([]string{
		string(PolicySuppressPrivileged),
		string(PolicySuppressAny),
		string(PolicyIgnore),
	}, string(p))
}

// RecordingState is what a detector saw. Privileged means capture of the
// playback path itself (loopback, sink monitors, screen recorders).
type RecordingState struct {
	Active     bool
	Privileged bool
}

type RecordingDetector interface {
	Name() string
	RecordingState() (RecordingState, error)
}

// recordingGuard applies the configured policy to what its detectors last
// reported. Detectors are only polled from the guard's own loop, so
// SuppressAttach never blocks on a process scan or a network round-trip.
type recordingGuard struct {
	logger    *zap.SugaredLogger
	policy    func() RecordingPolicy
	detectors []RecordingDetector
	clock     clockz.Clock
	interval  time.Duration

	lock   sync.RWMutex
	states []RecordingState

	stopChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

const defaultRecordingPollInterval = 2 * time.Second

type recordingGuardOption func(*recordingGuard)

func withGuardClock(clock clockz.Clock) recordingGuardOption {
	return func(g *recordingGuard) {
		g.clock = clock
	}
}

func withPollInterval(interval time.Duration) recordingGuardOption {
	return func(g *recordingGuard) {
		g.interval = interval
	}
}

func newRecordingGuard(
	logger *zap.SugaredLogger,
	policy func() RecordingPolicy,
	detectors []RecordingDetector,
	opts ...recordingGuardOption,
) *recordingGuard {
	logger = logger.Named("recording")

	g := &recordingGuard{
		logger:      logger,
		policy:      policy,
		detectors:   detectors,
		clock:       clockz.RealClock,
		interval:    defaultRecordingPollInterval,
		states:      make([]RecordingState, len(detectors)),
		stopChannel: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(g)
	}

	names := make([]string, len(detectors))
	for idx, detector := range detectors {
		names[idx] = detector.Name()
	}
	logger.Debugw("Created recording guard instance", "detectors", names, "interval", g.interval)

	return g
}

// start polls once, then keeps polling every interval until stop
func (g *recordingGuard) start() {
	g.refresh()

	ticker := g.clock.NewTicker(g.interval)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-g.stopChannel:
				return
			case <-ticker.C():
				g.refresh()
			}
		}
	}()
}

func (g *recordingGuard) stop() {
	g.stopOnce.Do(func() {
		close(g.stopChannel)
	})
	g.wg.Wait()
}

// refresh asks every detector for its state. A failing detector counts as
// idle until it answers again.
func (g *recordingGuard) refresh() {
	if g.policy() == PolicyIgnore {
		return
	}

	states := make([]RecordingState, len(g.detectors))
	for idx, detector := range g.detectors {
		state, err := detector.RecordingState()
		if err != nil {
			g.logger.Debugw("Recording detector failed", "detector", detector.Name(), "error", err)
			continue
		}
		states[idx] = state
	}

	g.lock.Lock()
	g.states = states
	g.lock.Unlock()
}

func (g *recordingGuard) SuppressAttach() bool {
	policy := g.policy()
	if policy == PolicyIgnore {
		return false
	}

	g.lock.RLock()
	defer g.lock.RUnlock()

	for idx, state := range g.states {
		if state.Privileged || (policy == PolicySuppressAny && state.Active) {
			g.logger.Debugw("Recording detected",
				"detector", g.detectors[idx].Name(),
				"policy", policy,
				"privileged", state.Privileged)
			return true
		}
	}

	return false
}

// processRecordingDetector looks for known recorder processes
type processRecordingDetector struct {
	names func() []string
}

func newProcessRecordingDetector(names func() []string) *processRecordingDetector {
	return &processRecordingDetector{names: names}
}

func (d *processRecordingDetector) Name() string {
	return "processes"
}

func (d *processRecordingDetector) RecordingState() (RecordingState, error) {
	wanted := normalizeProcessNames(d.names())
	if len(wanted) == 0 {
		return RecordingState{}, nil
	}

	processes, err := ps.Processes()
	if err != nil {
		return RecordingState{}, fmt.Errorf("list processes: %w", err)
	}

	for _, process := range processes {
		if funk.ContainsString(wanted, normalizeProcessName(process.Executable())) {
			return RecordingState{Active: true, Privileged: true}, nil
		}
	}

	return RecordingState{}, nil
}

func normalizeProcessNames(names []string) []string {
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		if name = normalizeProcessName(name); name != "" {
			normalized = append(normalized, name)
		}
	}
	return funk.UniqString(normalized)
}

// lowercase without extension, so "OBS64.exe" matches "obs64"
func normalizeProcessName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, filepath.Ext(name))
}
