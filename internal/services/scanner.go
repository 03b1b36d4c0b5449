package services

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"educheck/internal/logger"
	"educheck/internal/models"
	"educheck/internal/services/camera"
	"educheck/internal/services/session"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

var (
	ErrAlreadyScanning = errors.New("scanner already running")
	ErrUnknownDevice   = errors.New("unknown camera device")
)

// Decoder finds a code in a frame.
type Decoder interface {
	Decode(frame gocv.Mat) (*models.DecodedCode, bool)
}

// Overlay draws detection feedback on the preview canvas.
type Overlay interface {
	Render(canvas *gocv.Mat, corners models.Corners)
	Clear(canvas *gocv.Mat, frame gocv.Mat)
}

// Publisher pushes state and preview frames to operator screens.
type Publisher interface {
	PublishStatus(status interface{})
	PublishFrame(encoded string) bool
}

type ScannerConfig struct {
	Hold            time.Duration
	PreviewInterval int // Co którą klatkę wysyłać podgląd
	PreviewQuality  int
}

// Scanner ties the pipeline together: it owns the camera handle, runs the
// frame loop and the scan session, and reports state to viewers.
type Scanner struct {
	catalog   *camera.Catalog
	source    *camera.Source
	decoder   Decoder
	overlay   Overlay
	submitter session.Submitter
	hub       Publisher
	metrics   *Metrics
	logger    *logger.Logger
	cfg       ScannerConfig

	opMu sync.Mutex // Start, Stop i SwitchDevice wykonują się po kolei

	mu        sync.RWMutex
	state     models.CameraState
	deviceID  string
	devices   []models.CameraDevice
	sessionID string
	lastErr   string
	machine   *session.Machine
	last      models.SessionSnapshot

	machineCancel context.CancelFunc
	loopCancel    context.CancelFunc
	loopDone      chan struct{}
}

func NewScanner(catalog *camera.Catalog, source *camera.Source, decoder Decoder, overlay Overlay, submitter session.Submitter, hub Publisher, cfg ScannerConfig, logger *logger.Logger) *Scanner {
	if cfg.PreviewInterval < 1 {
		cfg.PreviewInterval = 1
	}
	if cfg.PreviewQuality < 1 || cfg.PreviewQuality > 100 {
		cfg.PreviewQuality = 70
	}
	return &Scanner{
		catalog:   catalog,
		source:    source,
		decoder:   decoder,
		overlay:   overlay,
		submitter: submitter,
		hub:       hub,
		metrics:   NewMetrics(),
		logger:    logger,
		cfg:       cfg,
		state:     models.CameraStopped,
		devices:   []models.CameraDevice{},
		last:      models.SessionSnapshot{Status: models.StatusIdle},
	}
}

// Start opens the preferred camera and begins a new scan session. A failed
// open is reported through Status and not retried; call Start again to retry.
func (s *Scanner) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.State() == models.CameraScanning {
		return ErrAlreadyScanning
	}
	s.stopLocked()

	s.newSession()

	devices := s.catalog.List(ctx)
	s.mu.Lock()
	s.devices = devices
	s.mu.Unlock()

	if len(devices) == 0 {
		s.logger.Warning("📷 No camera found")
		s.fail(camera.ErrNoCamera)
		return camera.ErrNoCamera
	}

	id, _ := s.catalog.Preferred(devices)
	if err := s.openAndRun(ctx, id); err != nil {
		return err
	}
	s.logger.Info("🎬 Scanner started on %s (session %s)", id, s.SessionID())
	return nil
}

// Stop ends the frame loop, releases the camera and closes the session.
// A submission still in flight is abandoned.
func (s *Scanner) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stopLocked()
	s.mu.Lock()
	s.state = models.CameraStopped
	s.lastErr = ""
	s.mu.Unlock()
	s.publishStatus()
	s.logger.Info("🛑 Scanner stopped")
}

// SwitchDevice moves scanning to another camera. The old handle is released
// before the new one opens and a running scan session carries on. When no
// session exists yet, one is started on the chosen device.
func (s *Scanner) SwitchDevice(ctx context.Context, deviceID string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	devices := s.catalog.List(ctx)
	s.mu.Lock()
	s.devices = devices
	s.mu.Unlock()

	known := false
	for _, d := range devices {
		if d.ID == deviceID {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownDevice
	}

	s.stopLoop()

	s.mu.RLock()
	started := s.machine != nil
	s.mu.RUnlock()
	if !started {
		s.newSession()
	}

	if err := s.openAndRun(ctx, deviceID); err != nil {
		return err
	}
	s.logger.Info("🔄 Switched to camera %s", deviceID)
	return nil
}

// Devices refreshes and returns the device listing.
func (s *Scanner) Devices(ctx context.Context) []models.CameraDevice {
	devices := s.catalog.List(ctx)
	s.mu.Lock()
	s.devices = devices
	s.mu.Unlock()
	return devices
}

func (s *Scanner) Status() models.TerminalStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.last
	if s.machine != nil {
		snapshot = s.machine.Snapshot()
	}
	devices := make([]models.CameraDevice, len(s.devices))
	copy(devices, s.devices)

	return models.TerminalStatus{
		SessionID: s.sessionID,
		Camera:    s.state,
		DeviceID:  s.deviceID,
		Devices:   devices,
		Error:     s.lastErr,
		Session:   snapshot,
		Metrics:   s.metrics.Snapshot(),
	}
}

func (s *Scanner) State() models.CameraState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scanner) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

func (s *Scanner) GetMetrics() *Metrics {
	return s.metrics
}

func (s *Scanner) newSession() {
	s.metrics.Reset()
	s.mu.Lock()
	s.sessionID = uuid.NewString()
	s.state = models.CameraStarting
	s.lastErr = ""
	s.last = models.SessionSnapshot{Status: models.StatusIdle}
	s.mu.Unlock()
	s.publishStatus()
}

// openAndRun binds deviceID and starts the frame loop, creating the session
// machine on first use.
func (s *Scanner) openAndRun(ctx context.Context, deviceID string) error {
	handle, err := s.source.Open(deviceID)
	if err != nil {
		s.logger.Error("Failed to open camera %s: %v", deviceID, err)
		s.fail(err)
		return err
	}

	s.mu.RLock()
	started := s.machine != nil
	s.mu.RUnlock()
	if !started {
		s.startMachine(ctx)
	}
	s.startLoop(handle)
	return nil
}

func (s *Scanner) startMachine(ctx context.Context) {
	machine := session.NewMachine(s.submitter, s.cfg.Hold, s.logger.Named("session"))
	updates, _ := machine.Subscribe()

	mctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go machine.Run(mctx)
	go func() {
		for snap := range updates {
			s.publishSession(snap)
		}
	}()

	s.mu.Lock()
	s.machine = machine
	s.machineCancel = cancel
	s.mu.Unlock()
}

func (s *Scanner) startLoop(handle *camera.Handle) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	machine := s.machine
	s.loopCancel = cancel
	s.loopDone = done
	s.state = models.CameraScanning
	s.deviceID = handle.DeviceID()
	s.lastErr = ""
	s.mu.Unlock()

	s.catalog.SetActive(handle.DeviceID())
	s.publishStatus()

	go func() {
		defer close(done)
		s.frameLoop(ctx, handle, machine)
	}()
}

// stopLoop cancels the frame loop and waits for it. The current read finishes
// first, so the handle is never closed under it.
func (s *Scanner) stopLoop() {
	s.mu.Lock()
	cancel, done := s.loopCancel, s.loopDone
	s.loopCancel, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scanner) stopLocked() {
	s.stopLoop()

	if err := s.source.Close(); err != nil {
		s.logger.Warning("Error releasing camera: %v", err)
	}
	s.catalog.SetActive("")

	s.mu.Lock()
	machine, cancel := s.machine, s.machineCancel
	s.machine, s.machineCancel = nil, nil
	s.deviceID = ""
	s.mu.Unlock()

	if machine == nil {
		return
	}
	cancel()
	<-machine.Done()

	s.mu.Lock()
	s.last = machine.Snapshot()
	s.mu.Unlock()
}

func (s *Scanner) frameLoop(ctx context.Context, handle *camera.Handle, machine *session.Machine) {
	frame := camera.NewFrame()
	defer frame.Close()
	canvas := gocv.NewMat()
	defer canvas.Close()

	count := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := handle.Next(frame); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.metrics.IncrementReadErrors()
			s.streamEnded(handle, err)
			return
		}
		s.metrics.IncrementFrames()

		s.overlay.Clear(&canvas, frame.Mat)
		if code, ok := s.decoder.Decode(frame.Mat); ok {
			s.overlay.Render(&canvas, code.Corners)

			accepted, err := machine.Offer(ctx, code.Payload)
			switch {
			case err == nil:
				s.metrics.RecordDecode(accepted)
			case ctx.Err() != nil:
				return
			default:
				s.logger.Warning("Decode of frame %d not offered: %v", frame.Seq, err)
			}
		}

		count++
		if count%s.cfg.PreviewInterval == 0 {
			s.publishPreview(canvas)
		}
	}
}

func (s *Scanner) publishPreview(canvas gocv.Mat) {
	if canvas.Empty() {
		return
	}
	buf, err := gocv.IMEncodeWithParams(".jpg", canvas, []int{gocv.IMWriteJpegQuality, s.cfg.PreviewQuality})
	if err != nil {
		s.logger.Warning("Failed to encode preview: %v", err)
		return
	}
	defer buf.Close()

	if s.hub.PublishFrame(base64.StdEncoding.EncodeToString(buf.GetBytes())) {
		s.metrics.IncrementPreviews()
	}
}

// streamEnded runs on the loop goroutine when the camera stops delivering.
func (s *Scanner) streamEnded(handle *camera.Handle, err error) {
	s.logger.Error("📷 Camera %s stopped delivering frames: %v", handle.DeviceID(), err)
	if cerr := handle.Close(); cerr != nil {
		s.logger.Warning("Error releasing camera %s: %v", handle.DeviceID(), cerr)
	}
	s.catalog.SetActive("")

	s.mu.Lock()
	s.state = models.CameraUnavailable
	s.deviceID = ""
	s.lastErr = camera.ErrDeviceUnavailable.Error()
	s.mu.Unlock()
	s.publishStatus()
}

func (s *Scanner) fail(err error) {
	s.catalog.SetActive("")
	s.mu.Lock()
	s.state = stateFor(err)
	s.deviceID = ""
	s.lastErr = err.Error()
	s.mu.Unlock()
	s.publishStatus()
}

func (s *Scanner) publishStatus() {
	s.hub.PublishStatus(s.Status())
}

// publishSession broadcasts the snapshot the machine emitted. Snapshot() may
// already be past it, e.g. a Cooldown that lasted only a moment.
func (s *Scanner) publishSession(snap models.SessionSnapshot) {
	status := s.Status()
	status.Session = snap
	s.hub.PublishStatus(status)
}

func stateFor(err error) models.CameraState {
	switch {
	case errors.Is(err, camera.ErrNoCamera):
		return models.CameraNoDevice
	case errors.Is(err, camera.ErrPermissionDenied):
		return models.CameraPermissionDenied
	default:
		return models.CameraUnavailable
	}
}
