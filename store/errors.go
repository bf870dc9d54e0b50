package store

import "errors"

var (
	// ErrUnsupportedKind is returned when a kind outside the known set is resolved.
	ErrUnsupportedKind = errors.New("arbor: unsupported kind")

	// ErrNotFound is returned when a record is not resident in the store.
	ErrNotFound = errors.New("arbor: record not found")

	// ErrDanglingReference is reported when a selected child is absent from the store.
	ErrDanglingReference = errors.New("arbor: child does not exist in the cache")

	// ErrNotAChild is reported when a selected record is not linked under the parent's slot.
	ErrNotAChild = errors.New("arbor: record is not a child of the parent")

	// ErrStaleAccess is reported when a deleted record is read.
	ErrStaleAccess = errors.New("arbor: record has been deleted")

	// ErrMissingToken is returned when a client is constructed without credentials.
	ErrMissingToken = errors.New("arbor: token not provided")

	// ErrConcurrentModification is returned when optimistic lock fails (version mismatch).
	ErrConcurrentModification = errors.New("arbor: record was modified concurrently")

	// ErrAlreadyExists is returned when a set targets a record id created elsewhere meanwhile.
	ErrAlreadyExists = errors.New("arbor: record already exists")
)
