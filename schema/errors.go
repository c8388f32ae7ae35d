package schema

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidWorkspace indicates an invalid workspace identifier.
	ErrInvalidWorkspace = errors.New("invalid workspace")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrEmptyFields indicates the field description was empty.
	ErrEmptyFields = errors.New("field description is required")
	// ErrBackendUnavailable indicates no backend client is configured.
	ErrBackendUnavailable = errors.New("backend client not configured")
	// ErrUploadRejected indicates the backend answered an upload with a non-200 code.
	ErrUploadRejected = errors.New("upload rejected")
)

// ValidationError reports user input rejected before any network call.
type ValidationError struct {
	Field  string
	Reason error
}

func (e *ValidationError) Error() string {
	if e == nil || e.Reason == nil {
		return "validation error"
	}
	if e.Field == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Reason
}

// TransportError reports a network failure or a non-success HTTP status.
// Interrupted is set when the body failed after some data was delivered.
type TransportError struct {
	Op          string
	Status      int
	Interrupted bool
	Err         error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport error"
	}
	msg := e.Op
	if msg == "" {
		msg = "request"
	}
	if e.Interrupted {
		msg += " interrupted"
	} else {
		msg += " failed"
	}
	if e.Status > 0 {
		msg = fmt.Sprintf("%s: %d %s", msg, e.Status, http.StatusText(e.Status))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StreamDecodeError reports a malformed byte sequence or an unparseable
// structured record.
type StreamDecodeError struct {
	Line []byte
	Err  error
}

func (e *StreamDecodeError) Error() string {
	if e == nil || e.Err == nil {
		return "stream decode error"
	}
	return "stream decode error: " + e.Err.Error()
}

func (e *StreamDecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsPartialFailure reports whether err ended a stream after delivery began.
func IsPartialFailure(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Interrupted
	}
	var decodeErr *StreamDecodeError
	return errors.As(err, &decodeErr)
}
