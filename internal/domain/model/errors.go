package model

import "errors"

var (
	ErrMalformed    = errors.New("malformed analysis response")
	ErrMissingField = errors.New("analysis response missing field")
)
