package models

// CameraDevice is one capture-capable device reported by the catalog.
type CameraDevice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// KindVideoInput marks a device that can deliver video frames.
const KindVideoInput = "videoinput"

// CameraState describes what the terminal's camera is doing right now.
type CameraState string

const (
	CameraStopped          CameraState = "stopped"
	CameraStarting         CameraState = "starting"
	CameraScanning         CameraState = "scanning"
	CameraNoDevice         CameraState = "no_camera"
	CameraPermissionDenied CameraState = "permission_denied"
	CameraUnavailable      CameraState = "device_unavailable"
)
