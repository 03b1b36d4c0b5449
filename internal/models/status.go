package models

// TerminalStatus is what the operator screen polls or receives over the
// websocket.
type TerminalStatus struct {
	SessionID string          `json:"session_id,omitempty"`
	Camera    CameraState     `json:"camera"`
	DeviceID  string          `json:"device_id,omitempty"`
	Devices   []CameraDevice  `json:"devices"`
	Error     string          `json:"error,omitempty"`
	Session   SessionSnapshot `json:"session"`
	Metrics   MetricsSnapshot `json:"metrics"`
}

// MetricsSnapshot holds pipeline counters.
type MetricsSnapshot struct {
	Frames      int64 `json:"frames"`
	Decoded     int64 `json:"decoded"`
	Accepted    int64 `json:"accepted"`
	Dropped     int64 `json:"dropped"`
	ReadErrors  int64 `json:"read_errors"`
	Previews    int64 `json:"previews"`
	LastFrameAt int64 `json:"last_frame_at"`
}
