package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/dto"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/service"
)

type RealtimeHandler struct {
	realtimeService *service.RealtimeService
}

func NewRealtimeHandler(realtimeService *service.RealtimeService) *RealtimeHandler {
	return &RealtimeHandler{
		realtimeService: realtimeService,
	}
}

// CreateEphemeralKey handles POST /api/realtime/ephemeral-key. An empty body
// takes every default.
func (h *RealtimeHandler) CreateEphemeralKey(c *gin.Context) {
	var req dto.EphemeralKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusUnprocessableEntity, errorResponse(http.StatusUnprocessableEntity, err.Error()))
		return
	}

	key, err := h.realtimeService.CreateEphemeralKey(c.Request.Context(), service.EphemeralKeyRequest{
		Model:               req.Model,
		Voice:               req.Voice,
		ExpiresAfterSeconds: req.ExpiresAfterSeconds,
		ExpiresAfterAnchor:  req.ExpiresAfterAnchor,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.EphemeralKeyResponse{
		APIKey:    key.APIKey,
		ExpiresAt: key.ExpiresAt,
		Session:   key.Session,
	})
}
