package overlay

import (
	"image"
	"image/color"
	"math"

	"educheck/internal/logger"
	"educheck/internal/models"

	"gocv.io/x/gocv"
)

const (
	DefaultThickness    = 4
	DefaultCornerRadius = 5
)

// DefaultColor is the green used for the symbol outline (#28a745).
var DefaultColor = color.RGBA{R: 0x28, G: 0xa7, B: 0x45, A: 0}

// Renderer draws operator feedback over the preview canvas. Drawing is best
// effort: failures are logged and never reach the caller.
type Renderer struct {
	color     color.RGBA
	thickness int
	radius    int
	logger    *logger.Logger
}

// NewRenderer returns a renderer with the default stroke style.
func NewRenderer(logger *logger.Logger) *Renderer {
	return &Renderer{
		color:     DefaultColor,
		thickness: DefaultThickness,
		radius:    DefaultCornerRadius,
		logger:    logger,
	}
}

// Render draws a closed quadrilateral through corners and marks each corner.
func (r *Renderer) Render(canvas *gocv.Mat, corners models.Corners) {
	if canvas == nil || canvas.Empty() {
		return
	}
	defer r.recover("render")

	pts := make([]image.Point, 0, len(corners))
	for _, c := range corners {
		pts = append(pts, image.Pt(int(math.Round(c.X)), int(math.Round(c.Y))))
	}

	outline := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer outline.Close()

	gocv.Polylines(canvas, outline, true, r.color, r.thickness)
	for _, p := range pts {
		gocv.Circle(canvas, p, r.radius, r.color, -1)
	}
}

// Clear removes the overlay by restoring the canvas from the raw frame.
func (r *Renderer) Clear(canvas *gocv.Mat, frame gocv.Mat) {
	if canvas == nil || frame.Empty() {
		return
	}
	defer r.recover("clear")

	frame.CopyTo(canvas)
}

func (r *Renderer) recover(op string) {
	if rec := recover(); rec != nil {
		r.logger.Warning("Overlay %s failed: %v", op, rec)
	}
}
