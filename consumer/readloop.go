// Package consumer implements the read side of the cache pull protocol:
// wait for data, read what's available, retry on a transient block.
package consumer

import (
	"io"

	"github.com/mediacache/mediacache/cache"
)

// DefaultWaitMillis bounds how long ReadLoop's WaitForData call blocks
// per retry when the caller doesn't specify one.
const DefaultWaitMillis = 5000

// ReadLoop copies from c starting at the current read cursor into w until
// end of input is reached or w.Write/c.ReadFromCache returns an error. It
// retries on cache.ErrWouldBlock by calling WaitForData first, and treats
// cache.ErrTimeout as fatal (the producer has stalled longer than
// waitMillis allows). waitMillis <= 0 selects DefaultWaitMillis.
func ReadLoop(c cache.Strategy, w io.Writer, chunk []byte, waitMillis int) (int64, error) {
	if waitMillis <= 0 {
		waitMillis = DefaultWaitMillis
	}

	var total int64
	for {
		n, err := c.ReadFromCache(chunk)
		if n > 0 {
			if _, werr := w.Write(chunk[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == nil {
			if n == 0 {
				return total, nil // drained and end of input reached
			}
			continue
		}
		if err == cache.ErrWouldBlock {
			if _, werr := c.WaitForData(1, waitMillis); werr != nil {
				return total, werr
			}
			continue
		}
		return total, err
	}
}
