package identity

import "errors"

var (
	// ErrCannotEstablishIdentity is returned when no username can be derived
	// from the resolved attributes or the name identifier. The authentication
	// attempt fails and is not retried.
	ErrCannotEstablishIdentity = errors.New("cannot establish identity: no username derivable")

	// ErrUnknownConvention is returned when a naming convention is requested
	// that has not been registered.
	ErrUnknownConvention = errors.New("unknown attribute naming convention")
)
