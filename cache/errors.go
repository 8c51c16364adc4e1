package cache

import "errors"

// ErrWouldBlock is returned by ReadFromCache when no data is available yet
// but end of input has not been reached. Callers should retry, typically
// after WaitForData.
var ErrWouldBlock = errors.New("mediacache: would block")

// ErrTimeout is returned by WaitForData (and internally by Seek's short
// wait) when the caller-supplied deadline elapses before enough data
// arrives.
var ErrTimeout = errors.New("mediacache: timed out waiting for data")

// ErrSeekBeforeStart is returned by Seek/SimpleFileCache when the
// requested position lies before the spool's start position.
var ErrSeekBeforeStart = errors.New("mediacache: seek before start of cache")

// ErrSeekUnreachable is returned by Seek when the target position is not
// in any cached region and cannot be reached with a short wait.
var ErrSeekUnreachable = errors.New("mediacache: seek target not reachable without re-reading source")

// ErrClosed is returned by operations attempted on a strategy that failed
// to Open or has been Closed.
var ErrClosed = errors.New("mediacache: cache strategy is closed")
