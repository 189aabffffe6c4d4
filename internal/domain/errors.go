package domain

import "errors"

var (
	// ErrUseCaseNotFound means no metadata record exists for the use case.
	ErrUseCaseNotFound = errors.New("use case not found")
	// ErrInvalidCursor means a list continuation cursor could not be decoded.
	ErrInvalidCursor = errors.New("invalid list cursor")
)
