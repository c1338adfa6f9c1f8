package config

import (
	"errors"
)

var (
	// ErrEmptyURL error if config webserver.URL is empty.
	ErrEmptyURL = errors.New("toml config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("toml config webserver.port listening port can not be 0")

	// ErrInvalidRole error if config role is neither "idp" nor "sp".
	ErrInvalidRole = errors.New("toml config role must be idp or sp")

	// ErrMissingKeyPair error if the configured role has no signing key pair.
	ErrMissingKeyPair = errors.New("toml config certfile and keyfile are required for this role")

	// ErrMissingIDPMetadata error if a service provider node has no partner metadata source.
	ErrMissingIDPMetadata = errors.New("toml config sp.idpmetadataurl or sp.idpmetadatafile is required")
)
