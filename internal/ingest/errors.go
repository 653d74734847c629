package ingest

import "errors"

var (
	// ErrAuthenticationMissing is returned when the admin name or password is
	// absent. It is checked before any store access.
	ErrAuthenticationMissing = errors.New("admin credentials missing")

	// ErrAuthenticationFailed is returned when the credentials do not match a
	// stored admin.
	ErrAuthenticationFailed = errors.New("admin authentication failed")

	// ErrNoExistingData is returned when a company has no chunks to embed.
	ErrNoExistingData = errors.New("company data does not exist")

	// ErrWriteFailed is returned when the chunk writer reports that the
	// replacement was not applied.
	ErrWriteFailed = errors.New("chunk write was not applied")

	// ErrEmptyContent is returned when uploaded content yields no chunks.
	ErrEmptyContent = errors.New("content is empty")
)
