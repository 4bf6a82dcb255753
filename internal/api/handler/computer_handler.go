package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/dto"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/service"
)

type ComputerHandler struct {
	computerService *service.ComputerService
}

func NewComputerHandler(computerService *service.ComputerService) *ComputerHandler {
	return &ComputerHandler{
		computerService: computerService,
	}
}

// RunOpusTask handles POST /api/opus-computer/task
func (h *ComputerHandler) RunOpusTask(c *gin.Context) {
	var req dto.OpusComputerTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, errorResponse(http.StatusUnprocessableEntity, err.Error()))
		return
	}

	output, err := h.computerService.RunOpusTask(c.Request.Context(), req.Task, service.OpusTaskOptions{
		Timeout:     time.Duration(req.TimeoutSeconds) * time.Second,
		Container:   req.Container,
		Model:       req.Model,
		ToolVersion: req.ToolVersion,
	})
	if err != nil {
		var svcErr *service.ServiceError
		switch {
		case errors.Is(err, service.ErrOpusTimeout):
			c.JSON(http.StatusGatewayTimeout, errorResponse(http.StatusGatewayTimeout, err.Error()))
		case errors.As(err, &svcErr):
			respondError(c, err)
		default:
			c.JSON(http.StatusInternalServerError, errorResponse(http.StatusInternalServerError, err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, dto.OpusComputerTaskResponse{Output: output})
}
