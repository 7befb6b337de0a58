package hagex

import "errors"

// Sentinel error kinds shared across the controller. Components wrap these
// with fmt.Errorf("...: %w", ...) so callers can classify failures with
// errors.Is.
var (
	ErrConfigInvalid         = errors.New("config invalid")
	ErrTransportFailed       = errors.New("transport failed")
	ErrAuthInvalid           = errors.New("auth invalid")
	ErrRequestTimeout        = errors.New("request timeout")
	ErrServiceCallFailed     = errors.New("service call failed")
	ErrPartialEntityFailure  = errors.New("partial entity failure")
	ErrSensorNotFound        = errors.New("sensor not found")
	ErrSensorFormatInvalid   = errors.New("sensor format invalid")
	ErrFsmTransitionRejected = errors.New("fsm transition rejected")
)
