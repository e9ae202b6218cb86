package kv

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

func isNotFound(err error) bool { return errors.Is(err, pebble.ErrNotFound) }
