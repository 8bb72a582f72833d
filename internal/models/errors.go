package models

import "errors"

// ErrPageNotFound is returned when a selected page cannot be resolved in
// the graph. It is fatal to the current operation: there is nothing to
// index or query without the page.
var ErrPageNotFound = errors.New("page not found")
