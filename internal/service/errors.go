package service

import "errors"

// ErrInvalid marks a request that failed validation.
var ErrInvalid = errors.New("invalid request")
