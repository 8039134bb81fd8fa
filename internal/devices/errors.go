package devices

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
)

// DeviceLookupError wraps a store failure during device evaluation. The
// caller must fail closed: treat the device as untrusted, never default to
// trusted.
type DeviceLookupError struct {
	Err error
}

func (e *DeviceLookupError) Error() string {
	return fmt.Sprintf("device lookup failed: %v", e.Err)
}

func (e *DeviceLookupError) Unwrap() error {
	return e.Err
}
