package models

// Point is a position in frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Corners holds the symbol outline in top-left, top-right, bottom-right,
// bottom-left order.
type Corners [4]Point

// DecodedCode is a single successful decode taken from one frame.
type DecodedCode struct {
	Payload string  `json:"payload"`
	Corners Corners `json:"corners"`
}
