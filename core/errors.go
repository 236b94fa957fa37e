package core

import "errors"

var (
	ErrConfig   = errors.New("configuration error")
	ErrStorage  = errors.New("storage unavailable")
	ErrProvider = errors.New("provider failure")
)
