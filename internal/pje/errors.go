package pje

import (
	"errors"
	"fmt"
)

// Sentinel errors for the recoverable failure classes. Callers contain
// each at the smallest meaningful scope: item, process, or region.
var (
	// ErrInvalidFormat marks a process number that does not match the CNJ
	// pattern. Items failing validation are dropped during partitioning.
	ErrInvalidFormat = errors.New("process number does not match the CNJ format")

	// ErrProcessNotFound means the portal has no record for the number.
	// The portal answers 403 for both absent and unauthorized processes,
	// so this is a normal outcome, not a failure of the pipeline.
	ErrProcessNotFound = errors.New("process not found")

	// ErrCaptchaExhausted means the captcha was not solved within the
	// attempt budget. The process is reported as an error and the batch
	// continues.
	ErrCaptchaExhausted = errors.New("captcha attempts exhausted")

	// ErrEntryNotCached is returned by process stores on a cache miss.
	ErrEntryNotCached = errors.New("no cached entry for process number")
)

// AuthenticationError wraps a failed region login. The scheduler logs it
// and skips the region's remaining work rather than aborting the run.
type AuthenticationError struct {
	Region string
	Err    error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for region %s: %v", e.Region, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// FatalError marks a portal response that ends the current attempt chain
// immediately, e.g. a 403 during captcha submission.
type FatalError struct {
	StatusCode int
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("portal rejected the request with status %d", e.StatusCode)
}
