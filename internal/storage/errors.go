package storage

import "errors"

// ErrUnavailable is returned by Ping when the backing store cannot be reached.
var ErrUnavailable = errors.New("cache unavailable")
