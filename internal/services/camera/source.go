package camera

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"educheck/internal/logger"

	"gocv.io/x/gocv"
)

// Capture is the part of gocv.VideoCapture the frame source needs.
type Capture interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Opener binds a device id to a live capture.
type Opener func(deviceID string) (Capture, error)

// GocvOpener opens devices with gocv. width and height are requested from the
// driver when positive.
func GocvOpener(width, height int) Opener {
	return func(deviceID string) (Capture, error) {
		vc, err := gocv.OpenVideoCapture(deviceID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		if !vc.IsOpened() {
			vc.Close()
			return nil, ErrDeviceUnavailable
		}
		if width > 0 {
			vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		}
		if height > 0 {
			vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
		}
		return vc, nil
	}
}

// ProbeDevice checks that a /dev node exists and is accessible before handing
// it to OpenCV, which reports both cases as a plain failure. Other ids
// (indexes, stream URLs) pass through.
func ProbeDevice(deviceID string) error {
	if !strings.HasPrefix(deviceID, "/dev/") {
		return nil
	}
	f, err := os.OpenFile(deviceID, os.O_RDWR, 0)
	if err != nil {
		switch {
		case os.IsPermission(err):
			return ErrPermissionDenied
		case os.IsNotExist(err):
			return ErrDeviceUnavailable
		default:
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}
	return f.Close()
}

// Frame is one decoded video frame. The Mat is reused between reads and must
// not be retained past a single decode attempt.
type Frame struct {
	Mat    gocv.Mat
	Width  int
	Height int
	Seq    uint64
}

// NewFrame allocates an empty frame buffer.
func NewFrame() *Frame {
	return &Frame{Mat: gocv.NewMat()}
}

// Close releases the frame buffer.
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// Source owns the capture handle. At most one handle is open at a time.
type Source struct {
	open   Opener
	probe  func(deviceID string) error
	logger *logger.Logger

	mu      sync.Mutex
	current *Handle
	live    int
}

// NewSource creates a frame source. probe may be nil.
func NewSource(open Opener, probe func(string) error, logger *logger.Logger) *Source {
	if probe == nil {
		probe = func(string) error { return nil }
	}
	return &Source{open: open, probe: probe, logger: logger}
}

// Open closes any open handle, then binds deviceID. Errors wrap
// ErrPermissionDenied or ErrDeviceUnavailable.
func (s *Source) Open(deviceID string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old := s.current; old != nil {
		s.logger.Info("Releasing camera %s before opening %s", old.deviceID, deviceID)
		if err := s.closeLocked(old); err != nil {
			s.logger.Warning("Error closing camera %s: %v", old.deviceID, err)
		}
	}

	if err := s.probe(deviceID); err != nil {
		return nil, &OpenError{DeviceID: deviceID, Err: classify(err)}
	}

	capture, err := s.open(deviceID)
	if err != nil {
		return nil, &OpenError{DeviceID: deviceID, Err: classify(err)}
	}

	h := &Handle{source: s, capture: capture, deviceID: deviceID}
	s.current = h
	s.live++
	s.logger.Info("📷 Camera %s opened", deviceID)
	return h, nil
}

// Current returns the open handle, or nil.
func (s *Source) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Live returns the number of handles not yet closed.
func (s *Source) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Close releases the open handle, if any.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.closeLocked(s.current)
}

func (s *Source) closeLocked(h *Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	s.live--
	if s.current == h {
		s.current = nil
	}
	err := h.capture.Close()
	s.logger.Info("📷 Camera %s released", h.deviceID)
	return err
}

func classify(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

// Handle is a live binding to one camera.
type Handle struct {
	source   *Source
	capture  Capture
	deviceID string

	mu     sync.Mutex
	closed bool
	seq    uint64
}

// DeviceID returns the bound device.
func (h *Handle) DeviceID() string {
	return h.deviceID
}

// Next blocks until the driver delivers a frame and reads it into f.
func (h *Handle) Next(f *Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	if ok := h.capture.Read(&f.Mat); !ok || f.Mat.Empty() {
		return ErrStreamEnded
	}

	h.seq++
	f.Seq = h.seq
	f.Width = f.Mat.Cols()
	f.Height = f.Mat.Rows()
	return nil
}

// Close releases the camera. Safe to call more than once.
func (h *Handle) Close() error {
	h.source.mu.Lock()
	defer h.source.mu.Unlock()
	return h.source.closeLocked(h)
}
