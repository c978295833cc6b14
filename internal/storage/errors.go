package storage

import "errors"

// ErrNotFound is returned by repositories when a row does not exist or is not
// owned by the requesting user. Callers detect it with errors.Is.
var ErrNotFound = errors.New("not found")
