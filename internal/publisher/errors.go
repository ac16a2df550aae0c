package publisher

import "errors"

var (
	ErrUnauthorized        = errors.New("not allowed to publish this content")
	ErrConflict            = errors.New("delivery is not in a state that allows this action")
	ErrNothingToPublish    = errors.New("nothing to publish")
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)
