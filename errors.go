package ata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ehrlich-b/go-ata/internal/ctrl"
)

// Error represents a structured driver error with device context and a
// mapping from protocol engine failures
type Error struct {
	Op     string    // Operation that failed (e.g., "detect", "read")
	Device string    // Registered device name ("" if not applicable)
	Slot   string    // Legacy slot name ("" if not applicable)
	Code   ErrorCode // High-level error category
	Status uint8     // Raw status register (0 if not applicable)
	ErrReg uint8     // Raw error register (0 if not applicable)
	Msg    string    // Human-readable message
	Inner  error     // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}

	if e.Device != "" {
		parts = append(parts, fmt.Sprintf("dev=%s", e.Device))
	}

	if e.Slot != "" && e.Slot != e.Device {
		parts = append(parts, fmt.Sprintf("slot=%s", e.Slot))
	}

	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=0x%02x", e.Status))
	}

	if e.ErrReg != 0 {
		parts = append(parts, fmt.Sprintf("error=0x%02x", e.ErrReg))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("ata: %s (%s)", msg, strings.Join(parts, ", "))
	}

	return fmt.Sprintf("ata: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches sentinel ATAError values and other *Error values by code
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if ae, ok := target.(ATAError); ok {
		return e.Code == ErrorCode(ae)
	}

	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}

	return false
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeDetectionFailure  ErrorCode = "detection failure"
	ErrCodeProtocolError     ErrorCode = "protocol error"
	ErrCodeNotSupported      ErrorCode = "not supported"
	ErrCodeDeviceNotFound    ErrorCode = "device not found"
	ErrCodeDuplicateName     ErrorCode = "duplicate device name"
	ErrCodeTableFull         ErrorCode = "device table full"
	ErrCodeTimeout           ErrorCode = "timeout"
	ErrCodeInvalidParameters ErrorCode = "invalid parameters"
	ErrCodeIOError           ErrorCode = "I/O error"
)

// ATAError is a sentinel error comparable with errors.Is against any *Error
// of the same code
type ATAError string

func (e ATAError) Error() string {
	return "ata: " + string(e)
}

const (
	ErrDetectionFailure  ATAError = ATAError(ErrCodeDetectionFailure)
	ErrProtocolError     ATAError = ATAError(ErrCodeProtocolError)
	ErrUnsupported       ATAError = ATAError(ErrCodeNotSupported)
	ErrNotFound          ATAError = ATAError(ErrCodeDeviceNotFound)
	ErrDuplicateName     ATAError = ATAError(ErrCodeDuplicateName)
	ErrTableFull         ATAError = ATAError(ErrCodeTableFull)
	ErrTimeout           ATAError = ATAError(ErrCodeTimeout)
	ErrInvalidParameters ATAError = ATAError(ErrCodeInvalidParameters)
)

// Error constructors

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// NewDeviceError creates a new device-specific error
func NewDeviceError(op, device string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:     op,
		Device: device,
		Code:   code,
		Msg:    msg,
	}
}

// WrapError wraps an existing error with driver context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	// If it's already a structured error, just update the operation
	var ae *Error
	if errors.As(inner, &ae) {
		out := *ae
		out.Op = op
		return &out
	}

	var sentinel ATAError
	if errors.As(inner, &sentinel) {
		return &Error{
			Op:    op,
			Code:  ErrorCode(sentinel),
			Inner: inner,
		}
	}

	var te *ctrl.TimeoutError
	if errors.As(inner, &te) {
		return &Error{
			Op:     op,
			Code:   ErrCodeTimeout,
			Status: uint8(te.Last),
			Msg:    fmt.Sprintf("timed out waiting for %s", te.Waiting),
			Inner:  inner,
		}
	}

	var se *ctrl.StatusError
	if errors.As(inner, &se) {
		return &Error{
			Op:     op,
			Code:   ErrCodeProtocolError,
			Status: uint8(se.Status),
			ErrReg: se.ErrReg,
			Msg:    "device reported an error",
			Inner:  inner,
		}
	}

	return &Error{
		Op:    op,
		Code:  mapCtrlError(inner),
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// mapCtrlError maps protocol engine sentinels to error codes
func mapCtrlError(err error) ErrorCode {
	switch {
	case errors.Is(err, ctrl.ErrNoDevice), errors.Is(err, ctrl.ErrFloatingBus), errors.Is(err, ctrl.ErrNotATA):
		return ErrCodeDetectionFailure
	case errors.Is(err, ctrl.ErrShortBuffer), errors.Is(err, ctrl.ErrLBARange):
		return ErrCodeInvalidParameters
	case errors.Is(err, ctrl.ErrBadTransfer):
		return ErrCodeProtocolError
	default:
		return ErrCodeIOError
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var ataErr *Error
	if errors.As(err, &ataErr) {
		return ataErr.Code == code
	}
	return false
}
