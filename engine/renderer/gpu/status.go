package gpu

import "fmt"

// Platform status codes, HRESULT encoded.
const (
	StatusOK              uint32 = 0x00000000
	StatusWaitTimeout     uint32 = 0x00000102
	StatusFail            uint32 = 0x80004005
	StatusInvalidArg      uint32 = 0x80070057
	StatusOutOfMemory     uint32 = 0x8007000E
	StatusNotFound        uint32 = 0x887A0002
	StatusUnsupported     uint32 = 0x887A0004
	StatusDeviceRemoved   uint32 = 0x887A0005
	StatusInvalidCall     uint32 = 0x887A0001
	StatusDeviceHung      uint32 = 0x887A0006
	StatusAlreadyReleased uint32 = 0x800710DD
)

// StatusError is a failed platform call.
type StatusError struct {
	Op     string
	Code   uint32
	Reason string
}

func NewStatusError(op string, code uint32, reason string) *StatusError {
	return &StatusError{Op: op, Code: code, Reason: reason}
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s failed with 0x%08X", e.Op, e.Code)
	}
	return fmt.Sprintf("%s failed with 0x%08X: %s", e.Op, e.Code, e.Reason)
}

func (e *StatusError) StatusCode() int32 {
	return int32(e.Code)
}
