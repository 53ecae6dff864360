package topology

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies the error conditions enumerated in spec.md §7.
// Pool/queue exhaustion and end-of-stream are deliberately not represented
// here: they are normal control flow (FireStatus / Status values), not
// errors.
type ErrorKind int

const (
	// KindConfiguration covers unknown plugins, missing sources, or an
	// empty topology — surfaced at Build/initialize time.
	KindConfiguration ErrorKind = iota
	// KindUserException wraps an error returned from inside a
	// source/factory/unfolder/processor callback. Panics are not recovered.
	KindUserException
	// KindTimeout marks a worker that failed to check in within its
	// warmup or steady-state timeout.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindUserException:
		return "user_exception"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the rich error type returned by every component in this module.
// It records where in the topology the failure occurred, what plugin and
// component produced it, and how long the failing operation ran, following
// the wrapping convention used throughout the package.
type Error struct {
	Timestamp time.Time
	Err       error
	Path      []Name
	Plugin    Name
	Component Name
	Factory   Name
	Tag       Name
	Kind      ErrorKind
	Duration  time.Duration
	Backtrace string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	path := strings.Join(e.Path, " -> ")
	if path == "" {
		path = "unknown"
	}
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("%s timed out after %v: %v", path, e.Duration, e.Err)
	case KindConfiguration:
		return fmt.Sprintf("%s configuration error: %v", path, e.Err)
	default:
		return fmt.Sprintf("%s failed after %v: %v", path, e.Duration, e.Err)
	}
}

// Unwrap supports errors.Is / errors.As against the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTimeout reports whether this error represents a supervisor-detected
// worker timeout (spec.md §7).
func (e *Error) IsTimeout() bool {
	return e != nil && e.Kind == KindTimeout
}

// WithContext annotates an error with the originating plugin, component
// (factory/arrow) name, and tag, as required by spec.md §4.1's "Error
// conditions": exceptions raised inside user code are wrapped, annotated,
// and rethrown.
func WithContext(err error, plugin, component, tag Name, kind ErrorKind) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Plugin == "" {
			existing.Plugin = plugin
		}
		if existing.Component == "" {
			existing.Component = component
		}
		if existing.Tag == "" {
			existing.Tag = tag
		}
		return existing
	}
	return &Error{
		Err:       err,
		Plugin:    plugin,
		Component: component,
		Tag:       tag,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

// Sentinel errors for conditions that are always configuration mistakes,
// never transient.
var (
	// ErrFactoryNotFound is raised by FactorySet.Get when no factory is
	// registered for the requested (object type, tag) pair.
	ErrFactoryNotFound = errors.New("factory not found")
	// ErrEmptyTopology is raised by Builder.Build when no source was
	// registered for any level.
	ErrEmptyTopology = errors.New("topology has no sources")
	// ErrUnresolvedPort is raised by Builder.Build when an arrow's port
	// does not resolve to a known queue or pool.
	ErrUnresolvedPort = errors.New("arrow port does not resolve to a queue or pool")
	// ErrMultiplePoolsPerLevel is raised when more than one pool is
	// registered for the same level.
	ErrMultiplePoolsPerLevel = errors.New("more than one pool registered for level")
	// ErrMultipleConsumers is raised when a queue has more than one
	// terminating consumer and work stealing is disabled.
	ErrMultipleConsumers = errors.New("queue has more than one terminating consumer")
	// ErrEngineFailed is returned from Run() when the engine transitioned
	// to Failed; the caller should inspect the wrapped *Error for details.
	ErrEngineFailed = errors.New("engine failed")
)
