package core

import (
	"errors"
	"fmt"
)

var (
	ErrInitialization  = errors.New("initialization failed")
	ErrDeviceCreation  = fmt.Errorf("%w: device creation refused", ErrInitialization)
	ErrGPUHang         = errors.New("gpu hang: fence wait timed out")
	ErrPresent         = errors.New("swapchain present failed")
	ErrResourceUpload  = errors.New("resource upload failed")
	ErrSubmission      = errors.New("command recording or submission failed")
	ErrAlreadyReleased = errors.New("resource already released")
	ErrUnknown         = errors.New("unknown")
)

// StatusCoder is implemented by backend errors that carry a platform status code.
type StatusCoder interface {
	StatusCode() int32
}

// RenderError ties a failure class to the operation that produced it.
type RenderError struct {
	Kind   error
	Op     string
	Status int32
	Err    error
}

func (e *RenderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s (status %s)", e.Op, e.Kind, formatStatus(e.Status))
	}
	return fmt.Sprintf("%s: %s (status %s): %s", e.Op, e.Kind, formatStatus(e.Status), e.Err)
}

func (e *RenderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Fail logs the failed operation with its status code and returns it as a *RenderError.
func Fail(kind error, op string, err error) error {
	var status int32
	var sc StatusCoder
	if errors.As(err, &sc) {
		status = sc.StatusCode()
	}
	logFailure(kind, op, status, err)
	return &RenderError{
		Kind:   kind,
		Op:     op,
		Status: status,
		Err:    err,
	}
}

// StatusOf extracts the status code of err, or 0 if there is none.
func StatusOf(err error) int32 {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Status
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

func formatStatus(status int32) string {
	return fmt.Sprintf("0x%08X", uint32(status))
}
