package errors

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrDepthExceeded    = errors.New("redaction depth exceeded")
	ErrStoreUnavailable = errors.New("entry store unavailable")
	ErrChainForked      = errors.New("chain tail moved during append")
)
