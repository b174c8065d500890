package sensor

import "go.uber.org/atomic"

// CleanupFlag guards delivery after teardown has begun. The Registry allocates one per
// attach cycle and shares it with every Subscription of that cycle, once marked it stays
// marked for them.
type CleanupFlag struct {
	v atomic.Bool
}

// MarkCleanUp is called before any subscription is cancelled during detach.
func (f *CleanupFlag) MarkCleanUp() {
	f.v.Store(true)
}

// Reset clears the flag.
func (f *CleanupFlag) Reset() {
	f.v.Store(false)
}

func (f *CleanupFlag) IsCleanUp() bool {
	return f.v.Load()
}
