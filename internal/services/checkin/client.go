package checkin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"educheck/internal/logger"
	"educheck/internal/models"

	"github.com/go-playground/validator/v10"
)

// Backend status values and default display messages.
const (
	StatusRegistered        = "registrado"
	StatusAlreadyRegistered = "ya_registrado"

	MessageRegistered        = "Asistencia registrada correctamente ✓"
	MessageAlreadyRegistered = "Asistencia ya registrada hoy"
	MessageCompleted         = "Registro completado"
	MessageFailed            = "Error al registrar asistencia"
	MessageInvalid           = "Código vacío"
)

const maxResponseBytes = 64 << 10

// Request is the check-in body. The decoded text is sent as is; judging it is
// the backend's job.
type Request struct {
	Documento string `json:"documento" validate:"required"`
}

// response is every field the backend may send, success or failure.
type response struct {
	Status  string `json:"status"`
	Mensaje string `json:"mensaje"`
	Error   string `json:"error"`
}

// Client posts check-ins to the attendance backend. It makes exactly one
// attempt per call and never retries.
type Client struct {
	endpoint string
	http     *http.Client
	validate *validator.Validate
	logger   *logger.Logger
}

// NewClient creates a client for endpoint with the given request timeout.
func NewClient(endpoint string, timeout time.Duration, logger *logger.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		validate: validator.New(),
		logger:   logger,
	}
}

// Submit sends payload and maps the reply into a CheckInOutcome. Failures are
// reported in the outcome, never as errors.
func (c *Client) Submit(ctx context.Context, payload string) models.CheckInOutcome {
	req := Request{Documento: payload}
	if err := c.validate.Struct(req); err != nil {
		c.logger.Warning("Refusing to submit empty payload: %v", err)
		return models.CheckInOutcome{Kind: models.OutcomeRejected, Message: MessageInvalid}
	}

	body, err := json.Marshal(req)
	if err != nil {
		c.logger.Error("Failed to encode check-in request: %v", err)
		return transportError()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("Failed to build check-in request: %v", err)
		return transportError()
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Error("Check-in request for %s failed: %v", req.Documento, err)
		return transportError()
	}
	defer resp.Body.Close()

	outcome := c.mapResponse(resp)
	c.logger.Info("Check-in %s -> %s (%d, %v)", req.Documento, outcome.Kind, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	return outcome
}

func (c *Client) mapResponse(resp *http.Response) models.CheckInOutcome {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Error("Failed to read check-in response: %v", err)
		return transportError()
	}

	var body response
	decodeErr := json.Unmarshal(raw, &body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr != nil {
			c.logger.Warning("Unreadable error body (status %d): %v", resp.StatusCode, decodeErr)
			return transportError()
		}
		return models.CheckInOutcome{Kind: models.OutcomeRejected, Message: firstNonEmpty(body.Error, body.Mensaje, MessageFailed)}
	}

	if decodeErr != nil {
		c.logger.Warning("Malformed check-in response: %v", decodeErr)
		return transportError()
	}

	switch {
	case body.Error != "":
		return models.CheckInOutcome{Kind: models.OutcomeRejected, Message: body.Error}
	case body.Status == StatusRegistered:
		return models.CheckInOutcome{Kind: models.OutcomeRegistered, Message: firstNonEmpty(body.Mensaje, MessageRegistered)}
	case body.Status == StatusAlreadyRegistered:
		return models.CheckInOutcome{Kind: models.OutcomeAlreadyRegistered, Message: firstNonEmpty(body.Mensaje, MessageAlreadyRegistered)}
	default:
		// Nieznany lub brakujący status: backend przyjął żądanie
		return models.CheckInOutcome{Kind: models.OutcomeRegistered, Message: firstNonEmpty(body.Mensaje, MessageCompleted)}
	}
}

func transportError() models.CheckInOutcome {
	return models.CheckInOutcome{Kind: models.OutcomeTransportError, Message: MessageFailed}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
