package store

import "errors"

var (
	ErrDuplicateAdmin = errors.New("admin already exists")
	ErrInvalidChunk   = errors.New("chunk requires company id and content")
	// errSuperseded aborts a replace transaction whose old chunk set has changed.
	errSuperseded = errors.New("chunk set superseded")
)
