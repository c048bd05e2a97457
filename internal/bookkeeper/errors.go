package bookkeeper

import "errors"

// Error kinds surfaced by the quota subsystem. Transport layers map these to
// outward signals; the core never converts between them. NotFound deliberately
// covers both "absent" and "present but unauthorized" for non-admin callers so
// record existence does not leak.
var (
	ErrNotFound     = errors.New("bookkeeper: not found")
	ErrForbidden    = errors.New("bookkeeper: forbidden")
	ErrInvalidQuota = errors.New("bookkeeper: invalid quota")
	ErrInvalidInput = errors.New("bookkeeper: invalid input")
	ErrConflict     = errors.New("bookkeeper: conflict")
	ErrTransient    = errors.New("bookkeeper: transient failure")
)
