package model

import "errors"

var (
	ErrInvalidPostID = errors.New("invalid post id")
	ErrUnknownAction = errors.New("unknown action")
)
