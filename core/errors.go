package core

import "errors"

var (
	ErrMediaUnavailable  = errors.New("media unavailable")
	ErrEmptyQuery        = errors.New("Query cannot be empty")
	ErrInvalidMaxResults = errors.New("max_results must be a positive integer")
	ErrVideoNotFound     = errors.New("video not found")
)
