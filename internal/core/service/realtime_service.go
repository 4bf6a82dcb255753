package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/adapter/openai"
)

const (
	DefaultRealtimeModel       = "gpt-realtime"
	DefaultRealtimeVoice       = "verse"
	DefaultExpiresAfterSeconds = 600
	DefaultExpiresAfterAnchor  = "created_at"
	minExpiresAfterSeconds     = 10
	maxExpiresAfterSeconds     = 3600
)

// ClientSecretCreator is implemented by openai.Client.
type ClientSecretCreator interface {
	CreateClientSecret(ctx context.Context, req openai.ClientSecretRequest) (map[string]any, error)
}

type EphemeralKeyRequest struct {
	Model               string
	Voice               string
	ExpiresAfterSeconds int
	ExpiresAfterAnchor  string
}

type EphemeralKey struct {
	APIKey    string
	ExpiresAt *int64
	Session   map[string]any
}

type RealtimeService struct {
	client ClientSecretCreator
	logger *slog.Logger
}

func NewRealtimeService(client ClientSecretCreator, logger *slog.Logger) *RealtimeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RealtimeService{client: client, logger: logger}
}

// CreateEphemeralKey mints a client secret for a browser realtime session.
// Zero fields take their defaults.
func (s *RealtimeService) CreateEphemeralKey(ctx context.Context, req EphemeralKeyRequest) (*EphemeralKey, error) {
	if req.Model == "" {
		req.Model = DefaultRealtimeModel
	}
	if req.Voice == "" {
		req.Voice = DefaultRealtimeVoice
	}
	if req.ExpiresAfterSeconds == 0 {
		req.ExpiresAfterSeconds = DefaultExpiresAfterSeconds
	}
	if req.ExpiresAfterAnchor == "" {
		req.ExpiresAfterAnchor = DefaultExpiresAfterAnchor
	}
	if req.ExpiresAfterSeconds < minExpiresAfterSeconds || req.ExpiresAfterSeconds > maxExpiresAfterSeconds {
		return nil, NewServiceError(http.StatusUnprocessableEntity,
			fmt.Sprintf("expires_after_seconds must be between %d and %d", minExpiresAfterSeconds, maxExpiresAfterSeconds))
	}

	data, err := s.client.CreateClientSecret(ctx, openai.ClientSecretRequest{
		ExpiresAfter: openai.ExpiresAfter{
			Anchor:  req.ExpiresAfterAnchor,
			Seconds: req.ExpiresAfterSeconds,
		},
		Session: openai.SessionConfig{
			Type:  "realtime",
			Model: req.Model,
			Audio: openai.SessionAudio{Output: openai.AudioOutput{Voice: req.Voice}},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		switch {
		case errors.As(err, &apiErr):
			s.logger.Warn("openai rejected client secret request", "status", apiErr.StatusCode)
			return nil, &ServiceError{Code: apiErr.StatusCode, Message: err.Error(), Detail: apiErr.Detail, Err: err}
		case errors.Is(err, openai.ErrMissingAPIKey):
			return nil, &ServiceError{Code: http.StatusInternalServerError, Message: err.Error(), Err: err}
		default:
			s.logger.Error("failed to create client secret", "error", err)
			return nil, &ServiceError{Code: http.StatusBadGateway, Message: err.Error(), Err: err}
		}
	}

	value, _ := data["value"].(string)
	if value == "" {
		return nil, &ServiceError{
			Code:    http.StatusInternalServerError,
			Message: "OpenAI response missing `value`",
			Detail:  map[string]any{"message": "OpenAI response missing `value`", "raw": data},
		}
	}

	key := &EphemeralKey{APIKey: value}
	if expiresAt, ok := data["expires_at"].(float64); ok {
		v := int64(expiresAt)
		key.ExpiresAt = &v
	}
	if session, ok := data["session"].(map[string]any); ok {
		key.Session = session
	}

	s.logger.Info("minted realtime client secret", "model", req.Model, "expires_at", key.ExpiresAt)
	return key, nil
}
