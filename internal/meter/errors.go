package meter

import "errors"

var (
	// ErrResourceUnavailable is returned by Open when the meter input or the
	// indicator output cannot be acquired.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrAttributeInterfaceUnavailable is returned when an attribute surface
	// (HTTP listener, MQTT subscription) cannot be registered at startup.
	ErrAttributeInterfaceUnavailable = errors.New("attribute interface unavailable")
)
