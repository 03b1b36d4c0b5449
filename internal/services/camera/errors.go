package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied means the OS refused access to the device.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceUnavailable means the device id no longer resolves or stopped delivering frames.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrNoCamera means enumeration found no capture-capable device.
	ErrNoCamera = errors.New("no camera available")
	// ErrStreamEnded is returned by Handle.Next when the capture stops producing frames.
	ErrStreamEnded = errors.New("camera stream ended")
	// ErrHandleClosed is returned when using a handle after Close.
	ErrHandleClosed = errors.New("camera handle closed")
)

// OpenError reports which device failed to open.
type OpenError struct {
	DeviceID string
	Err      error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open camera %s: %v", e.DeviceID, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }
