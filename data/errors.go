package data

import "errors"

// Standard mirror errors that store and sandbox implementations should use.
var (
	// Path resolution errors
	ErrInvalidPath = errors.New("mirrorfs: invalid path detected")

	// File operation errors
	ErrNotExist     = errors.New("mirrorfs: file does not exist")
	ErrExist        = errors.New("mirrorfs: file already exists")
	ErrIsDirectory  = errors.New("mirrorfs: is a directory")
	ErrNotDirectory = errors.New("mirrorfs: not a directory")
	ErrLocked       = errors.New("mirrorfs: file is locked")

	// Sandbox errors
	ErrWriteFailed    = errors.New("mirrorfs: sandbox write failed")
	ErrSandboxClosed  = errors.New("mirrorfs: sandbox already closed")
	ErrObjectTooLarge = errors.New("mirrorfs: object exceeds backend size limit")

	// I/O errors
	ErrClosed  = errors.New("mirrorfs: already closed")
	ErrInvalid = errors.New("mirrorfs: invalid argument")
)
