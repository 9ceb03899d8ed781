package model

import "errors"

// Error taxonomy for the voting core. Handlers map these to HTTP
// statuses; anything unrecognized is a storage/internal failure and
// surfaces as a generic server error.
var (
	ErrNameRequired   = errors.New("name is required")
	ErrOptionRequired = errors.New("option is required")
	ErrInvalidOption  = errors.New("option is not in the allowed set")
	ErrAlreadyVoted   = errors.New("you have already voted")
	ErrInvalidToken   = errors.New("invalid or expired token")
)
