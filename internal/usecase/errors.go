package usecase

import (
	"errors"

	"github.com/example/skinai/internal/classifier"
)

var (
	// ErrEmptyPayload is returned for an upload with no bytes.
	ErrEmptyPayload = errors.New("empty file")
	// ErrPayloadTooLarge is returned for uploads above the byte ceiling.
	ErrPayloadTooLarge = errors.New("file too large")
	// ErrInternal marks unexpected decode or classifier failures.
	ErrInternal = errors.New("internal failure")
	// ErrModelUnavailable is re-exported so callers need not import classifier.
	ErrModelUnavailable = classifier.ErrModelUnavailable
)
