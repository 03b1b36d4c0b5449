package camera

import (
	"context"
	"strings"
	"sync"

	"educheck/internal/logger"
	"educheck/internal/models"

	"golang.org/x/text/cases"
)

// Enumerator lists capture devices from one source.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]models.CameraDevice, error)
}

// Catalog merges enumerators and tracks the active device.
type Catalog struct {
	enumerators []Enumerator
	hints       []string
	override    string
	logger      *logger.Logger

	mu     sync.RWMutex
	active string
}

// NewCatalog builds a catalog. override, when non-empty and present in the
// listing, beats the label heuristic.
func NewCatalog(hints []string, override string, logger *logger.Logger, enumerators ...Enumerator) *Catalog {
	return &Catalog{
		enumerators: enumerators,
		hints:       hints,
		override:    override,
		logger:      logger,
	}
}

// List returns a fresh snapshot of every capture-capable device. A failing
// enumerator is logged and skipped.
func (c *Catalog) List(ctx context.Context) []models.CameraDevice {
	devices := make([]models.CameraDevice, 0)
	seen := make(map[string]bool)

	for _, e := range c.enumerators {
		found, err := e.Enumerate(ctx)
		if err != nil {
			c.logger.Warning("Device enumeration failed: %v", err)
			continue
		}
		for _, d := range found {
			if d.Kind != models.KindVideoInput || seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			devices = append(devices, d)
		}
	}
	return devices
}

// Preferred picks the device to open from devices.
func (c *Catalog) Preferred(devices []models.CameraDevice) (string, bool) {
	if c.override != "" {
		for _, d := range devices {
			if d.ID == c.override {
				return d.ID, true
			}
		}
		c.logger.Warning("Configured camera %s not found, falling back to heuristic", c.override)
	}
	return SelectPreferred(devices, c.hints)
}

// Active returns the id of the device currently in use.
func (c *Catalog) Active() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// SetActive records the device currently in use ("" when none).
func (c *Catalog) SetActive(id string) {
	c.mu.Lock()
	c.active = id
	c.mu.Unlock()
}

// SelectPreferred returns the first device whose label contains any hint
// (case-insensitive), else the first device. It reports false for an empty list.
func SelectPreferred(devices []models.CameraDevice, hints []string) (string, bool) {
	if len(devices) == 0 {
		return "", false
	}

	fold := cases.Fold()
	folded := make([]string, 0, len(hints))
	for _, h := range hints {
		if h = strings.TrimSpace(h); h != "" {
			folded = append(folded, fold.String(h))
		}
	}

	for _, d := range devices {
		label := fold.String(d.Label)
		for _, h := range folded {
			if strings.Contains(label, h) {
				return d.ID, true
			}
		}
	}
	return devices[0].ID, true
}

// StaticEnumerator serves a fixed device list, e.g. network streams from config.
type StaticEnumerator []models.CameraDevice

func (s StaticEnumerator) Enumerate(context.Context) ([]models.CameraDevice, error) {
	out := make([]models.CameraDevice, len(s))
	copy(out, s)
	return out, nil
}
