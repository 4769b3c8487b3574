package harmony

import (
	"errors"
	"fmt"
)

var (
	ErrAcquisitionFailed = errors.New("token acquisition failed")
	ErrProviderRejected  = errors.New("provider rejected request")
	ErrOperationFailed   = errors.New("operation returned no usable payload")
	ErrTransport         = errors.New("request could not be sent")

	// ErrMissingCustomerKey is a caller bug: no request is attempted and nothing is logged.
	ErrMissingCustomerKey = errors.New("record has no CustomerKey")
	ErrInvalidCustomerKey = errors.New("CustomerKey is not a valid path segment")
)

// TokenError is returned when no bearer token could be obtained.
type TokenError struct {
	StatusCode int
	Message    string
	LogID      int64
	Err        error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("failed to acquire access token (see log #%d): %s", e.LogID, e.Message)
}

func (e *TokenError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAcquisitionFailed}
	}
	return []error{ErrAcquisitionFailed, e.Err}
}

// RemoteError is returned when a records call failed. Kind is one of
// ErrProviderRejected, ErrOperationFailed or ErrTransport.
type RemoteError struct {
	Op         string
	Kind       error
	StatusCode int
	Message    string
	LogID      int64
	Err        error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed (see log #%d): %v: %s", e.Op, e.LogID, e.Kind, e.Message)
}

func (e *RemoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// LogID returns the call record id attached to err, if any.
func LogID(err error) (int64, bool) {
	var tokenErr *TokenError
	if errors.As(err, &tokenErr) && tokenErr.LogID != 0 {
		return tokenErr.LogID, true
	}
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) && remoteErr.LogID != 0 {
		return remoteErr.LogID, true
	}
	return 0, false
}
