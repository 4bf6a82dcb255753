package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/dto"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/tools"
)

type ToolHandler struct {
	registry *tools.Registry
}

func NewToolHandler(registry *tools.Registry) *ToolHandler {
	return &ToolHandler{
		registry: registry,
	}
}

// ListTools handles GET /api/tools
func (h *ToolHandler) ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": h.registry.Definitions()})
}

// CallTool handles POST /api/tools/:name
func (h *ToolHandler) CallTool(c *gin.Context) {
	name := c.Param("name")

	var req dto.ToolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, err.Error()))
		return
	}

	args := req.Arguments
	// Realtime sessions deliver arguments as a JSON-encoded string.
	var encoded string
	if err := json.Unmarshal(args, &encoded); err == nil {
		args = json.RawMessage(encoded)
	}

	output, err := h.registry.Call(c.Request.Context(), name, args)
	if err != nil {
		switch {
		case errors.Is(err, tools.ErrUnknownTool):
			c.JSON(http.StatusNotFound, errorResponse(http.StatusNotFound, err.Error()))
		case errors.Is(err, tools.ErrInvalidArgs):
			c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, errorResponse(http.StatusInternalServerError, err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, dto.ToolCallResponse{Name: name, Output: output})
}
