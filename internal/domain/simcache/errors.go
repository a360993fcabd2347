package simcache

import "errors"

// ErrReleased is returned by Entry.Wait when the owner gave the entry up without a result.
var ErrReleased = errors.New("simcache: entry released without result")
