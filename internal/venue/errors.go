package venue

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds for venue operations. Adapters wrap these sentinels so callers
// can classify failures with errors.Is without depending on venue specific
// error types.
var (
	// ErrNetwork covers transport failures, timeouts and non-2xx venue
	// responses. Transient and venue-local.
	ErrNetwork = errors.New("network error")
	// ErrUnsupportedCapability means the venue does not support the
	// requested operation. A caller/config error, never retried.
	ErrUnsupportedCapability = errors.New("unsupported capability")
	// ErrMalformedResponse means the venue answered but the payload could
	// not be decoded into the canonical model.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrInvalidArgument is raised synchronously for caller errors in
	// pure computations.
	ErrInvalidArgument = errors.New("invalid argument")
)

// NetworkError wraps a transport failure for a venue.
func NetworkError(venue string, err error) error {
	return fmt.Errorf("%s: %w: %v", venue, ErrNetwork, err)
}

// UnsupportedCapabilityError reports that a venue does not offer an
// operation.
func UnsupportedCapabilityError(venue string, op Operation) error {
	return fmt.Errorf("%s does not support %s: %w", venue, op, ErrUnsupportedCapability)
}

// MalformedResponseError wraps a decode failure for a venue payload.
func MalformedResponseError(venue string, err error) error {
	return fmt.Errorf("%s: %w: %v", venue, ErrMalformedResponse, err)
}

// Reason maps an error to the stable kind identifier used in aggregation
// failure maps and API payloads. Context deadline errors count as network
// failures.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedCapability):
		return "unsupported_capability"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "network_error"
	default:
		return "network_error"
	}
}
