package noncecache

// lightweight local error type, the same small-sentinel pattern used
// elsewhere in this module instead of reaching for an errors-wrapping
// library for three constant values.
type errString string

func (e errString) Error() string { return string(e) }

// ErrMissingRegistry is returned by New when Options.Registry is nil.
const ErrMissingRegistry = errString("noncecache: Options.Registry is required")

// ErrMissingRecompute is returned by New when Options.Recompute is nil.
const ErrMissingRecompute = errString("noncecache: Options.Recompute is required")

// ErrMissingPropertyName is returned by New when Options.PropertyName is empty.
const ErrMissingPropertyName = errString("noncecache: Options.PropertyName is required")
