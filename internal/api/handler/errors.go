package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/dto"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/service"
)

func errorResponse(code int, message string) dto.ErrorResponse {
	return dto.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	}
}

// respondError renders err with the status carried by a ServiceError, 409
// for a busy task slot, and 500 otherwise.
func respondError(c *gin.Context, err error) {
	var svcErr *service.ServiceError
	switch {
	case errors.As(err, &svcErr):
		resp := errorResponse(svcErr.Code, svcErr.Message)
		resp.Detail = svcErr.Detail
		c.JSON(svcErr.Code, resp)
	case errors.Is(err, service.ErrTaskInProgress):
		c.JSON(http.StatusConflict, errorResponse(http.StatusConflict, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, errorResponse(http.StatusInternalServerError, err.Error()))
	}
}
