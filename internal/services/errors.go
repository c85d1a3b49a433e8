package services

import (
	"errors"
	"fmt"
)

// Error classes. Handlers map them to HTTP statuses with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
)

var (
	ErrMissingFields      = fmt.Errorf("%w: name, email and password are required", ErrInvalidArgument)
	ErrPasswordTooLong    = fmt.Errorf("%w: password is too long", ErrInvalidArgument)
	ErrMoodRequired       = fmt.Errorf("%w: mood is required", ErrInvalidArgument)
	ErrInvalidUserID      = fmt.Errorf("%w: invalid user id", ErrInvalidArgument)
	ErrInvalidDate        = fmt.Errorf("%w: invalid date", ErrInvalidArgument)
	ErrInvalidExportID    = fmt.Errorf("%w: invalid export id", ErrInvalidArgument)
	ErrEmailTaken         = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrNoToken            = fmt.Errorf("%w: no token provided", ErrForbidden)
	ErrExportNotReady     = fmt.Errorf("%w: export not ready", ErrNotFound)
)
