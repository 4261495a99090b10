package posts

import (
	"errors"

	"postengine/internal/filter"
	"postengine/internal/store"
)

var (
	// ErrNotFound means a post, collection or tag does not exist.
	ErrNotFound = store.ErrNotFound
	// ErrInvalidArgument means a request payload failed validation. It is
	// always returned before any row is touched.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidFilter means a filter failed to parse, named an unknown
	// field, or was blank where a target is required.
	ErrInvalidFilter = filter.ErrInvalid
	// ErrUnsupportedAction means the bulk action name is unknown.
	ErrUnsupportedAction = errors.New("unsupported bulk action")
)
