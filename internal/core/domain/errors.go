package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller lacks permission for this action
	ErrForbidden = errors.New("forbidden")

	// ErrSyncInProgress indicates a sync is already running for the source
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSourceNotFound indicates the form definition does not exist
	ErrSourceNotFound = errors.New("source not found")

	// ErrTableNotFound indicates the backing relational table does not exist
	ErrTableNotFound = errors.New("table not found")

	// ErrIndexUnavailable indicates the search index could not be reached or created
	ErrIndexUnavailable = errors.New("search index unavailable")

	// ErrCursorStalled indicates a batch did not move the cursor forward
	ErrCursorStalled = errors.New("cursor did not advance")

	// ErrTokenExpired indicates the auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the auth token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")
)
