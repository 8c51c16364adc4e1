// Package producer drives a cache.Strategy from a slow, sequentially-read
// upstream source using the pull loop: ask the cache how much room it has,
// read that much from the source, write it in, repeat until the source is
// exhausted.
package producer

import (
	"errors"
	"io"
	"time"

	"github.com/mediacache/mediacache/cache"
)

// Source is anything bytes can be pulled from sequentially. Any io.Reader
// satisfies it directly.
type Source interface {
	Read(p []byte) (int, error)
}

// NewReaderSource wraps an io.Reader as a Source. It exists mainly for
// readability at call sites — r already satisfies Source.
func NewReaderSource(r io.Reader) Source {
	return r
}

// Pump repeatedly moves bytes from a Source into a cache.Strategy until the
// source is exhausted or Stop is called.
type Pump struct {
	Source Source
	Cache  cache.Strategy

	// ChunkSize bounds how much is requested from GetMaxWriteSize per
	// iteration. Zero selects DefaultChunkSize.
	ChunkSize int

	// IdleWait is how long Run sleeps when the cache has no room right
	// now. Zero selects DefaultIdleWait.
	IdleWait time.Duration

	stop chan struct{}
}

// DefaultChunkSize is the read size Run requests when ChunkSize is unset.
const DefaultChunkSize = 64 * 1024

// DefaultIdleWait is how long Run sleeps when the cache reports no
// available room, rather than busy-polling GetMaxWriteSize.
const DefaultIdleWait = 10 * time.Millisecond

// NewPump returns a Pump moving bytes from src into c.
func NewPump(src Source, c cache.Strategy) *Pump {
	return &Pump{Source: src, Cache: c, stop: make(chan struct{})}
}

// Stop asks Run to return after its current iteration. Safe to call once.
func (p *Pump) Stop() {
	close(p.stop)
}

// Run executes the pull loop until the source is exhausted, Stop is
// called, or a non-EOF read error or a cache write error occurs.
// EndOfInput is signalled on the cache only when the source reports
// io.EOF; a stop or an error returns without signalling it.
func (p *Pump) Run() error {
	chunk := p.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	idle := p.IdleWait
	if idle <= 0 {
		idle = DefaultIdleWait
	}
	buf := make([]byte, chunk)

	for {
		select {
		case <-p.stop:
			return nil
		default:
		}

		n := p.Cache.GetMaxWriteSize(chunk)
		if n == 0 {
			time.Sleep(idle)
			continue
		}

		read, err := p.Source.Read(buf[:n])
		if read > 0 {
			if _, werr := p.Cache.WriteToCache(buf[:read]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.Cache.EndOfInput()
				return nil
			}
			return err
		}
		if read == 0 {
			time.Sleep(idle)
		}
	}
}
