package hbasis

import "errors"

var (
	// ErrUnknownMode indicates an unrecognized basis variant name
	ErrUnknownMode = errors.New("hbasis: unknown basis mode")
)
