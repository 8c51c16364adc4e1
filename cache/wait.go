package cache

import (
	"sync"
	"time"
)

// waitBounded waits on cond for at most d, using a timer to force a wakeup
// instead of the indefinite block sync.Cond.Wait offers natively. The
// caller's lock (the one cond was built from) must be held on entry; it is
// released while waiting and re-acquired before returning, exactly like
// cond.Wait()'s normal contract.
func waitBounded(cond *sync.Cond, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.AfterFunc(d, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
}
