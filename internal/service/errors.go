package service

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("access denied")
	ErrNotFound   = errors.New("post not found")
	ErrStorage    = errors.New("storage unavailable")
)
