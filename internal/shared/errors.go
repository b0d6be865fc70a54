package shared

import "errors"

var (
	// ErrUnknownPermission indicates a permission id absent from the catalog.
	ErrUnknownPermission = errors.New("unknown permission")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the record changed since it was read.
	ErrConflict = errors.New("version conflict")
	// ErrAuditWriteFailed indicates a mutation was persisted but its audit
	// record was not. Callers must surface this distinctly from a failed
	// mutation: the permission change is already live.
	ErrAuditWriteFailed = errors.New("audit write failed")
	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("store unavailable")
	// ErrTimeout indicates the backing store did not answer in time.
	ErrTimeout = errors.New("store timeout")
)
