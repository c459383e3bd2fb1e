package monitor

import "errors"

var (
	ErrRunInProgress  = errors.New("monitoring run already in progress")
	ErrInvalidProfile = errors.New("invalid adaptive profile")
	ErrUnknownPolicy  = errors.New("unknown policy")
	ErrWindowOverlap  = errors.New("policy windows overlap")
)
