package service

import (
	"errors"
	"net/http"
)

// ErrTaskInProgress is returned when a coding task is started while another
// one still owns the process slot.
var ErrTaskInProgress = errors.New("a task is already running")

// ServiceError carries the HTTP status a handler should answer with, plus an
// optional structured detail forwarded from an upstream service.
type ServiceError struct {
	Code    int
	Message string
	Detail  any
	Err     error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func NewServiceError(code int, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

func badRequest(message string) *ServiceError {
	return NewServiceError(http.StatusBadRequest, message)
}
