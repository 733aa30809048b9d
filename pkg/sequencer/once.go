package sequencer

import "sync/atomic"

// OncePerFlow wraps resolve so that only its first call has any effect. The
// returned function reports whether this call was the one that resolved.
// Every flow routes its outcome through it so that late or duplicated
// notifications cannot change an outcome already reported.
func OncePerFlow[T any](resolve func(T)) func(T) bool {
	var done atomic.Bool
	return func(v T) bool {
		if !done.CompareAndSwap(false, true) {
			return false
		}
		resolve(v)
		return true
	}
}
