package catalog

import "errors"

// ErrTableNotFound is returned by ReadTable when no table matches the
// given TableRef in the target database.
var ErrTableNotFound = errors.New("table not found")

// ErrCatalogQueryFailed wraps any failure querying sys.* catalog views.
var ErrCatalogQueryFailed = errors.New("catalog query failed")
