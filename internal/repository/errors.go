package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a uniqueness constraint rejected the write.
	ErrDuplicate = errors.New("repository: duplicate")
	// ErrConflict indicates a conditional update lost against concurrent state,
	// e.g. rotating a refresh token another request already consumed.
	ErrConflict = errors.New("repository: conflict")
)
