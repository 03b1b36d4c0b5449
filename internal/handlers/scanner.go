package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"educheck/internal/logger"
	"educheck/internal/models"
	"educheck/internal/services"
	"educheck/internal/services/camera"
)

// Scanner is what the operator endpoints drive.
type Scanner interface {
	Start(ctx context.Context) error
	Stop()
	SwitchDevice(ctx context.Context, deviceID string) error
	Devices(ctx context.Context) []models.CameraDevice
	Status() models.TerminalStatus
}

type selectDeviceRequest struct {
	ID string `json:"id"`
}

// StatusHandler returns the full terminal status as JSON.
func StatusHandler(scanner Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, scanner.Status())
	}
}

// DevicesHandler returns a fresh device listing.
func DevicesHandler(scanner Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, scanner.Devices(r.Context()))
	}
}

// StartHandler opens the camera and begins a session. It is also the manual
// retry after a failed open.
func StartHandler(scanner Scanner, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := scanner.Start(r.Context()); err != nil {
			logger.Warning("Start requested but failed: %v", err)
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, scanner.Status())
	}
}

// StopHandler releases the camera and closes the session.
func StopHandler(scanner Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scanner.Stop()
		writeJSON(w, http.StatusOK, scanner.Status())
	}
}

// SelectDeviceHandler switches to the camera named in the body.
func SelectDeviceHandler(scanner Scanner, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectDeviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			http.Error(w, "Device id is required", http.StatusBadRequest)
			return
		}

		if err := scanner.SwitchDevice(r.Context(), req.ID); err != nil {
			logger.Warning("Switch to %s failed: %v", req.ID, err)
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, scanner.Status())
	}
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrAlreadyScanning):
		return http.StatusConflict
	case errors.Is(err, services.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, camera.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, camera.ErrNoCamera), errors.Is(err, camera.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
