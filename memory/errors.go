package memory

import "errors"

var (
	// ErrStoreUnavailable is returned when a backing store cannot be opened
	// or created. It is fatal and should propagate.
	ErrStoreUnavailable = errors.New("memory: store unavailable")

	// ErrEmptyContent is returned when a document with empty content is written.
	ErrEmptyContent = errors.New("memory: empty content")

	// ErrUnknownStore is returned when a store name has not been registered.
	ErrUnknownStore = errors.New("memory: unknown store")

	// ErrValidation is returned for malformed input such as an unsupported
	// condition value type. It is a programming or config error, never retried.
	ErrValidation = errors.New("memory: validation failed")

	// ErrConfiguration is returned at construction time when a record or a
	// memory is missing required entries.
	ErrConfiguration = errors.New("memory: configuration error")
)
