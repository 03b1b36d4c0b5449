package services

import (
	"sync/atomic"
	"time"

	"educheck/internal/models"
)

// Metrics counts what the frame loop does. All methods are safe for
// concurrent use.
type Metrics struct {
	frames      atomic.Int64
	decoded     atomic.Int64
	accepted    atomic.Int64
	dropped     atomic.Int64
	readErrors  atomic.Int64
	previews    atomic.Int64
	lastFrameAt atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncrementFrames() {
	m.frames.Add(1)
	m.lastFrameAt.Store(time.Now().Unix())
}

// RecordDecode counts a successful decode and whether the session took it.
func (m *Metrics) RecordDecode(accepted bool) {
	m.decoded.Add(1)
	if accepted {
		m.accepted.Add(1)
	} else {
		m.dropped.Add(1)
	}
}

func (m *Metrics) IncrementReadErrors() {
	m.readErrors.Add(1)
}

func (m *Metrics) IncrementPreviews() {
	m.previews.Add(1)
}

func (m *Metrics) Snapshot() models.MetricsSnapshot {
	return models.MetricsSnapshot{
		Frames:      m.frames.Load(),
		Decoded:     m.decoded.Load(),
		Accepted:    m.accepted.Load(),
		Dropped:     m.dropped.Load(),
		ReadErrors:  m.readErrors.Load(),
		Previews:    m.previews.Load(),
		LastFrameAt: m.lastFrameAt.Load(),
	}
}

// Reset zeroes every counter, used when a new session starts.
func (m *Metrics) Reset() {
	m.frames.Store(0)
	m.decoded.Store(0)
	m.accepted.Store(0)
	m.dropped.Store(0)
	m.readErrors.Store(0)
	m.previews.Store(0)
	m.lastFrameAt.Store(0)
}
