//go:build linux && !appengine

package fluffy

import "errors"

// Error kinds from spec.md §7. Each is a sentinel so callers can use
// errors.Is; KernelIO and PathResolution errors additionally wrap the
// underlying syscall error with fmt.Errorf("%w: ...").
var (
	// ErrInvalidArgument covers a null/empty path or otherwise malformed input.
	ErrInvalidArgument = errors.New("fluffy: invalid argument")
	// ErrPathResolution means a caller-supplied path could not be canonicalized.
	ErrPathResolution = errors.New("fluffy: path resolution failed")
	// ErrResourceExhausted means the kernel refused a watch with ENOSPC
	// (max_user_watches hit) or ENOMEM. A failed inotify_init1 (for example
	// at max_user_instances) is reported as ErrKernelIO instead.
	ErrResourceExhausted = errors.New("fluffy: resource exhausted")
	// ErrKernelIO means a read, write, or close of the kernel notifier failed.
	ErrKernelIO = errors.New("fluffy: kernel notifier I/O error")
	// ErrNotFound means a handle is unknown, or a path is not indexed.
	ErrNotFound = errors.New("fluffy: not found")
	// ErrNotInitialized means the Registry has no entry for this Context, or
	// the Context was already torn down.
	ErrNotInitialized = errors.New("fluffy: not initialized")
	// ErrSinkTerminated means the sink returned non-zero and the Context is
	// exiting (or has already exited) as a result.
	ErrSinkTerminated = errors.New("fluffy: sink terminated the context")
	// ErrInternalConsistency signals that an index lookup failed where the
	// invariants require a hit. Logged, not propagated to the caller, except
	// where explicitly noted.
	ErrInternalConsistency = errors.New("fluffy: internal consistency error")

	// ErrAlreadyWaiting is returned by WaitUntilDone/Detach when the other
	// of the pair has already been called (they are mutually exclusive).
	ErrAlreadyWaiting = errors.New("fluffy: context already has a waiter")
)
