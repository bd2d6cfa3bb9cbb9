package audiofx

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	wca "github.com/moutend/go-wca/pkg/wca"
	"go.uber.org/zap"

	"github.com/nik9play/audiofx/pkg/audiofx/device"
)

const (

	// the notification client will call this multiple times in quick succession based on the
	// default device's assigned media roles, so we need to filter out the extraneous calls
	minDefaultDeviceChangeThreshold = 100 * time.Millisecond

	// the session list of the default endpoint is diffed on this interval
	sessionPollInterval = 2 * time.Second

	audioSessionStateExpired = 2
)

type wcaRequestKind int

const (
	wcaRequestDevices wcaRequestKind = iota
	wcaRequestSessions
)

type wcaResult struct {
	devices  []device.Info
	sessions map[uint32]string
	err      error
}

type wcaRequest struct {
	kind wcaRequestKind
	res  chan wcaResult
}

// wcaWorker owns a COM-initialized OS thread; every WASAPI call goes through it
type wcaWorker struct {
	logger *zap.SugaredLogger

	mmDeviceEnumerator      *wca.IMMDeviceEnumerator
	mmNotificationClient    *wca.IMMNotificationClient
	lastDefaultDeviceChange time.Time

	// endpoint id strings are mapped to small stable numbers
	endpointIDs map[string]int

	deviceChanges chan struct{}
	reqChannel    chan wcaRequest

	workerCtx    context.Context
	workerCancel context.CancelFunc

	releaseOnce sync.Once
}

var (
	sharedWorker     *wcaWorker
	sharedWorkerLock sync.Mutex
)

func getWCAWorker(logger *zap.SugaredLogger) *wcaWorker {
	sharedWorkerLock.Lock()
	defer sharedWorkerLock.Unlock()

	if sharedWorker != nil {
		return sharedWorker
	}

	ctx, cancel := context.WithCancel(context.Background())

	sharedWorker = &wcaWorker{
		logger:        logger.Named("wca"),
		endpointIDs:   make(map[string]int),
		deviceChanges: make(chan struct{}, 1),
		reqChannel:    make(chan wcaRequest),
		workerCtx:     ctx,
		workerCancel:  cancel,
	}

	go sharedWorker.run(ctx)

	return sharedWorker
}

// go-wca's Activate passes the CLSCTX by pointer, which fails with E_INVALIDARG over RDP
func mmdActivateWorkaround(mmd *wca.IMMDevice, refIID *ole.GUID, ctx uint32, prop, obj interface{}) (err error) {
	objValue := reflect.ValueOf(obj).Elem()
	hr, _, _ := syscall.SyscallN(
		mmd.VTable().Activate,
		uintptr(unsafe.Pointer(mmd)),
		uintptr(unsafe.Pointer(refIID)),
		uintptr(ctx),
		0,
		objValue.Addr().Pointer())
	if hr != 0 {
		err = ole.NewError(hr)
	}
	return
}

func (w *wcaWorker) initializeCOMLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("COM initializing stopping")
			return errors.New("com initializing stopped")
		default:
			err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED)

			if err == nil {
				return nil
			}

			// if the error is "Incorrect function" that corresponds to 0x00000001,
			// which represents E_FALSE in COM error handling. this is fine for this function,
			// and just means that the call was redundant.
			const eFalse = 1
			oleError := &ole.OleError{}

			if errors.As(err, &oleError) && oleError.Code() == eFalse {
				return nil
			}

			w.logger.Warnw("Failed to call CoInitializeEx. Retrying...", "error", err)
			time.Sleep(2 * time.Second)
		}
	}
}

func (w *wcaWorker) run(ctx context.Context) {
	// all COM operations must happen on the same initialized thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := w.initializeCOMLoop(ctx); err != nil {
		return
	}
	w.logger.Info("COM initialized")
	defer ole.CoUninitialize()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("WCA worker stopping")
			if w.mmDeviceEnumerator != nil {
				w.mmDeviceEnumerator.Release()
			}
			return
		case req := <-w.reqChannel:
			var result wcaResult

			switch req.kind {
			case wcaRequestDevices:
				result.devices, result.err = w.defaultDevice()
			case wcaRequestSessions:
				result.sessions, result.err = w.defaultEndpointSessions()
			}

			req.res <- result
		}
	}
}

func (w *wcaWorker) request(kind wcaRequestKind) wcaResult {
	req := wcaRequest{kind: kind, res: make(chan wcaResult, 1)}

	select {
	case w.reqChannel <- req:
	case <-w.workerCtx.Done():
		return wcaResult{err: errors.New("wca worker stopped")}
	}

	return <-req.res
}

func (w *wcaWorker) release() {
	w.releaseOnce.Do(func() {
		// skip unregistering the mmnotificationclient, as it's not implemented in go-wca
		w.workerCancel()

		sharedWorkerLock.Lock()
		sharedWorker = nil
		sharedWorkerLock.Unlock()

		w.logger.Debug("Released WCA worker")
	})
}

func (w *wcaWorker) ensureEnumerator() error {
	if w.mmDeviceEnumerator == nil {
		if err := wca.CoCreateInstance(
			wca.CLSID_MMDeviceEnumerator,
			0,
			wca.CLSCTX_ALL,
			wca.IID_IMMDeviceEnumerator,
			&w.mmDeviceEnumerator,
		); err != nil {
			w.logger.Warnw("Failed to call CoCreateInstance", "error", err)
			return fmt.Errorf("call CoCreateInstance: %w", err)
		}
	}

	// receive notifications whenever the default device changes (only do this once)
	if w.mmNotificationClient == nil {
		callback := wca.IMMNotificationClientCallback{
			OnDefaultDeviceChanged: w.defaultDeviceChangedCallback,
		}

		w.mmNotificationClient = wca.NewIMMNotificationClient(callback)

		if err := w.mmDeviceEnumerator.RegisterEndpointNotificationCallback(w.mmNotificationClient); err != nil {
			w.mmNotificationClient = nil
			w.logger.Warnw("Failed to call RegisterEndpointNotificationCallback", "error", err)
			return fmt.Errorf("call RegisterEndpointNotificationCallback: %w", err)
		}
	}

	return nil
}

func (w *wcaWorker) defaultEndpoint() (*wca.IMMDevice, error) {
	if err := w.ensureEnumerator(); err != nil {
		return nil, err
	}

	var mmOutDevice *wca.IMMDevice
	if err := w.mmDeviceEnumerator.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &mmOutDevice); err != nil {
		return nil, fmt.Errorf("call GetDefaultAudioEndpoint: %w", err)
	}

	return mmOutDevice, nil
}

func (w *wcaWorker) defaultDevice() ([]device.Info, error) {
	endpoint, err := w.defaultEndpoint()
	if err != nil {
		return nil, err
	}
	defer endpoint.Release()

	var endpointID string
	if err := endpoint.GetId(&endpointID); err != nil {
		return nil, fmt.Errorf("get endpoint id: %w", err)
	}

	var propertyStore *wca.IPropertyStore
	if err := endpoint.OpenPropertyStore(wca.STGM_READ, &propertyStore); err != nil {
		return nil, fmt.Errorf("open endpoint property store: %w", err)
	}
	defer propertyStore.Release()

	value := &wca.PROPVARIANT{}

	// device description i.e. "Headphones"
	if err := propertyStore.GetValue(&wca.PKEY_Device_DeviceDesc, value); err != nil {
		return nil, fmt.Errorf("get device description: %w", err)
	}
	description := value.String()

	// device friendly name i.e. "Headphones (Realtek Audio)"
	if err := propertyStore.GetValue(&wca.PKEY_Device_FriendlyName, value); err != nil {
		return nil, fmt.Errorf("get device friendly name: %w", err)
	}
	friendlyName := value.String()

	id, ok := w.endpointIDs[endpointID]
	if !ok {
		id = len(w.endpointIDs) + 1
		w.endpointIDs[endpointID] = id
	}

	info := device.Classify(endpointHints(id, description, friendlyName))

	w.logger.Debugw("Resolved default endpoint",
		"endpointId", endpointID,
		"description", description,
		"friendlyName", friendlyName,
		"device", &info)

	return []device.Info{info}, nil
}

// windows only exposes names, so bus and form factor are guessed from them
func endpointHints(id int, description, friendlyName string) device.Hints {
	hints := device.Hints{
		ID:          id,
		ProductName: friendlyName,
		Description: description,
	}

	lowerName := strings.ToLower(friendlyName)
	lowerDesc := strings.ToLower(description)

	switch {
	case strings.Contains(lowerName, "bluetooth") || strings.Contains(lowerName, "hands-free"):
		hints.Bus = "bluetooth"
		if strings.Contains(lowerName, "hands-free") {
			hints.Profile = "handsfree"
		}
	case strings.Contains(lowerName, "usb"):
		hints.Bus = "usb"
	}

	switch {
	case strings.Contains(lowerDesc, "headset"):
		hints.FormFactor = "headset"
	case strings.Contains(lowerDesc, "headphone"):
		hints.FormFactor = "headphone"
	case strings.Contains(lowerDesc, "speaker"):
		hints.FormFactor = "speaker"
	}

	return hints
}

func (w *wcaWorker) defaultEndpointSessions() (map[uint32]string, error) {
	endpoint, err := w.defaultEndpoint()
	if err != nil {
		return nil, err
	}
	defer endpoint.Release()

	var audioSessionManager2 *wca.IAudioSessionManager2
	if err := mmdActivateWorkaround(endpoint, wca.IID_IAudioSessionManager2, wca.CLSCTX_ALL, nil, &audioSessionManager2); err != nil {
		return nil, fmt.Errorf("activate endpoint: %w", err)
	}
	defer audioSessionManager2.Release()

	var sessionEnumerator *wca.IAudioSessionEnumerator
	if err := audioSessionManager2.GetSessionEnumerator(&sessionEnumerator); err != nil {
		return nil, fmt.Errorf("get session enumerator: %w", err)
	}
	defer sessionEnumerator.Release()

	var sessionCount int
	if err := sessionEnumerator.GetCount(&sessionCount); err != nil {
		return nil, fmt.Errorf("get session count: %w", err)
	}

	sessions := make(map[uint32]string, sessionCount)

	for sessionIdx := 0; sessionIdx < sessionCount; sessionIdx++ {
		var audioSessionControl *wca.IAudioSessionControl
		if err := sessionEnumerator.GetSession(sessionIdx, &audioSessionControl); err != nil {
			w.logger.Debugw("Failed to get session from session enumerator",
				"error", err,
				"sessionIdx", sessionIdx)
			continue
		}

		var state uint32
		if err := audioSessionControl.GetState(&state); err != nil || state == audioSessionStateExpired {
			audioSessionControl.Release()
			continue
		}

		dispatch, err := audioSessionControl.QueryInterface(wca.IID_IAudioSessionControl2)
		audioSessionControl.Release()
		if err != nil {
			continue
		}

		audioSessionControl2 := (*wca.IAudioSessionControl2)(unsafe.Pointer(dispatch))

		// UWP sessions return an error alongside a valid pid. the system sounds
		// session has none and is never attached
		var pid uint32
		if err := audioSessionControl2.GetProcessId(&pid); pid == 0 {
			if err != nil {
				w.logger.Debugw("Skipping session without pid", "sessionIdx", sessionIdx, "error", err)
			}
			audioSessionControl2.Release()
			continue
		}

		var displayName string
		_ = audioSessionControl2.GetDisplayName(&displayName)
		audioSessionControl2.Release()

		sessions[pid] = displayName
	}

	return sessions, nil
}

//nolint:revive
func (w *wcaWorker) defaultDeviceChangedCallback(
	flow wca.EDataFlow, role wca.ERole, pwstrDeviceId string,
) error {

	// filter out calls that happen in rapid succession
	now := time.Now()

	if w.lastDefaultDeviceChange.Add(minDefaultDeviceChangeThreshold).After(now) {
		return nil
	}

	w.lastDefaultDeviceChange = now

	w.logger.Debug("Default audio device changed")

	select {
	case w.deviceChanges <- struct{}{}:
	default:
	}

	return nil
}

// wcaDeviceSource reports the default render endpoint
type wcaDeviceSource struct {
	worker *wcaWorker
}

func newDeviceSource(logger *zap.SugaredLogger) (DeviceSource, error) {
	return &wcaDeviceSource{worker: getWCAWorker(logger)}, nil
}

func (ds *wcaDeviceSource) Devices() ([]device.Info, error) {
	result := ds.worker.request(wcaRequestDevices)
	return result.devices, result.err
}

func (ds *wcaDeviceSource) SubscribeToDeviceChanges() <-chan struct{} {
	return ds.worker.deviceChanges
}

func (ds *wcaDeviceSource) Release() error {
	ds.worker.release()
	return nil
}

// wcaSessionSource diffs the process sessions of the default endpoint.
// Session IDs are process IDs.
type wcaSessionSource struct {
	logger *zap.SugaredLogger
	worker *wcaWorker

	known         map[uint32]string
	sessionEvents chan SessionEvent

	stopChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newSessionSource(logger *zap.SugaredLogger) (SessionSource, error) {
	ss := &wcaSessionSource{
		logger:        logger.Named("session_source"),
		worker:        getWCAWorker(logger),
		known:         make(map[uint32]string),
		sessionEvents: make(chan SessionEvent, sessionEventChanSize),
		stopChannel:   make(chan struct{}),
	}

	ss.wg.Add(1)
	go ss.pollLoop()

	ss.logger.Debug("Created WCA session source")
	return ss, nil
}

func (ss *wcaSessionSource) pollLoop() {
	defer ss.wg.Done()

	ticker := time.NewTicker(sessionPollInterval)
	defer ticker.Stop()

	ss.poll()

	for {
		select {
		case <-ss.stopChannel:
			return
		case <-ticker.C:
			ss.poll()
		}
	}
}

func (ss *wcaSessionSource) poll() {
	result := ss.worker.request(wcaRequestSessions)
	if result.err != nil {
		ss.logger.Debugw("Failed to list sessions", "error", result.err)
		return
	}

	for pid, name := range ss.known {
		if _, ok := result.sessions[pid]; !ok {
			delete(ss.known, pid)
			ss.emitEvent(SessionEvent{Type: SessionClosed, ID: int(pid), Name: name})
		}
	}

	for pid, name := range result.sessions {
		if _, ok := ss.known[pid]; !ok {
			ss.known[pid] = name
			ss.emitEvent(SessionEvent{Type: SessionOpened, ID: int(pid), Name: name})
		}
	}
}

func (ss *wcaSessionSource) emitEvent(event SessionEvent) {
	select {
	case ss.sessionEvents <- event:
	default:
		ss.logger.Warnw("Session event channel full, dropping event", "event", event)
	}
}

func (ss *wcaSessionSource) SubscribeToSessionEvents() <-chan SessionEvent {
	return ss.sessionEvents
}

func (ss *wcaSessionSource) Release() error {
	ss.stopOnce.Do(func() {
		close(ss.stopChannel)
	})
	ss.wg.Wait()

	ss.worker.release()
	ss.logger.Debug("Released WCA session source")
	return nil
}
