// Package errs defines the error kinds shared across switchboard packages.
//
// Packages wrap these with their own sentinels so callers can classify a
// failure with errors.Is without depending on the package that raised it.
package errs

import "errors"

var (
	// ErrConfiguration marks a missing or malformed key, secret, or registry entry.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuthentication marks a failed integrity or signature check.
	ErrAuthentication = errors.New("authentication error")
	// ErrValidation marks input rejected before any network call.
	ErrValidation = errors.New("validation error")
	// ErrTransport marks an unexpected failure talking to a remote provider.
	ErrTransport = errors.New("transport error")
	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a record that already exists.
	ErrConflict = errors.New("conflict")
)
