// Package errors provides structured error handling with error codes for the
// device trust service.
//
// Every outcome the trust engine surfaces to its callers is an *Error carrying
// an ErrorCode, a human readable message and optional details. HTTP handlers
// translate codes to status codes with MapErrorCodeToHTTPStatus.
//
// # Basic Usage
//
//	import "github.com/tendant/device-trust/pkg/errors"
//
//	// Create a simple error
//	err := errors.New(errors.ErrCodeNotFound, "session not found")
//
//	// Wrap an existing error
//	err := errors.Wrap(dbErr, errors.ErrCodeInternal, "failed to count sessions")
//
//	// Domain constructors
//	err := errors.InvalidCredentials()
//	err := errors.AccountSuspended()
//	err := errors.DeviceLimitExceeded(2, 2)
//
// # Error Codes
//
// Login outcomes:
//   - ErrCodeValidationFailed (400): device fingerprint token missing
//   - ErrCodeInvalidCredentials (401): unknown email or wrong password
//   - ErrCodeAccountSuspended (403): account deactivated
//   - ErrCodeDeviceLimitExceeded (403): cap reached, details max_devices and active_sessions
//
// Session outcomes:
//   - ErrCodeSessionExpired (401): token does not resolve to a live session
//   - ErrCodeNotFound (404): session id unknown or owned by someone else
//
// # Error Inspection
//
//	if errors.IsCode(err, errors.ErrCodeDeviceLimitExceeded) {
//		details := errors.GetDetails(err)
//		max := details[errors.DetailMaxDevices]
//	}
//
//	status := errors.MapErrorCodeToHTTPStatus(errors.GetCode(err))
//
// Errors wrapped with fmt.Errorf("...: %w", err) keep their code, since the
// inspection helpers use errors.As.
package errors
