package application

import "errors"

var (
	// ErrInvalidRequest is returned when a request fails validation.
	ErrInvalidRequest = errors.New("update site: invalid request")
	// ErrNilService is returned by methods called on a nil service.
	ErrNilService = errors.New("update site: nil service")
)
