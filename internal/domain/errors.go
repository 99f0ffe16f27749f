package domain

import "errors"

var (
	// ErrConfig marks invalid configuration detected before any work starts.
	ErrConfig = errors.New("config error")
	// ErrExternalService marks a failed embedding, tokenizer or generator call.
	ErrExternalService = errors.New("external service error")
	// ErrIndexNotReady is returned when searching before a build or load completed.
	ErrIndexNotReady = errors.New("index not ready")
	// ErrBuildInProgress is returned when a second build starts while one is running.
	ErrBuildInProgress = errors.New("index build already in progress")
	// ErrNotFound is returned by stores that hold no persisted index.
	ErrNotFound = errors.New("persisted index not found")
)
