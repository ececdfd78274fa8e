// Package storage defines shared errors for the blob store backends.
package storage

import "errors"

// ErrAppendUnsupported is returned by backends without native incremental
// append. The download pipeline reacts by uploading the whole file once
// at the end instead.
var ErrAppendUnsupported = errors.New("backend does not support incremental appends")
