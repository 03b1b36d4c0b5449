package decoder

import (
	"educheck/internal/models"

	"gocv.io/x/gocv"
)

// QRDecoder locates and decodes one QR symbol per frame. It keeps no state
// between calls but wraps a native detector, so use it from one goroutine.
type QRDecoder struct {
	detector gocv.QRCodeDetector
	points   gocv.Mat
	straight gocv.Mat
}

// NewQRDecoder allocates the native detector.
func NewQRDecoder() *QRDecoder {
	return &QRDecoder{
		detector: gocv.NewQRCodeDetector(),
		points:   gocv.NewMat(),
		straight: gocv.NewMat(),
	}
}

// Decode returns the payload and corners of the symbol in frame. A frame
// without a readable symbol is not an error: it returns nil, false.
func (d *QRDecoder) Decode(frame gocv.Mat) (*models.DecodedCode, bool) {
	if frame.Empty() {
		return nil, false
	}

	payload := d.detector.DetectAndDecode(frame, &d.points, &d.straight)
	if payload == "" {
		return nil, false
	}

	corners, ok := readCorners(d.points)
	if !ok {
		return nil, false
	}

	return &models.DecodedCode{Payload: payload, Corners: corners}, true
}

// readCorners converts the detector's 4x(x,y) float output. OpenCV orders the
// points clockwise starting at the symbol's top-left finder pattern.
func readCorners(points gocv.Mat) (models.Corners, bool) {
	var corners models.Corners
	if points.Empty() {
		return corners, false
	}

	data, err := points.DataPtrFloat32()
	if err != nil || len(data) < 8 {
		return corners, false
	}

	for i := range corners {
		corners[i] = models.Point{X: float64(data[i*2]), Y: float64(data[i*2+1])}
	}
	return corners, true
}

// Close releases native resources.
func (d *QRDecoder) Close() error {
	d.points.Close()
	d.straight.Close()
	return d.detector.Close()
}
