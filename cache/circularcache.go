package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/mediacache/mediacache/clock"
)

// CircularCache is a fixed-size in-memory ring buffer, internally split
// into two sub-regions so that two disjoint file-offset ranges can be
// cached simultaneously. The active region always takes priority over its
// peer; an inactive region's length only ever shrinks from its beg side,
// and a region that shrinks to zero length becomes unused (beg=end=-1).
type CircularCache struct {
	mux     sync.Mutex
	written *sync.Cond // signalled on write, woken readers re-check availability
	space   *sync.Cond // signalled on read, for producer backpressure

	buf      []byte
	size     int64
	sizeBack int64

	beg1, end1 int64
	time1      int64
	start1     int64

	beg2, end2 int64
	time2      int64
	start2     int64

	readPos  int64
	writePos int64

	endOfInput bool
	opened     bool

	clock clock.Clock
	st    *stat
}

var _ Strategy = (*CircularCache)(nil)

// region identifiers used internally to name "region 1" / "region 2" /
// "no region" without repeating magic numbers everywhere.
const (
	regionNone = 0
	region1    = 1
	region2    = 2
)

// NewCircularCache returns a CircularCache with the given forward/back
// buffer sizes. clk lets tests drive staleness deterministically; nil
// selects the real wall clock.
func NewCircularCache(front, back int64, clk clock.Clock, debugLvl int) *CircularCache {
	if front < 0 {
		front = 0
	}
	if back < 0 {
		back = 0
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &CircularCache{
		// both regions stay unused until Open sets up region 1.
		beg1: -1, end1: -1,
		beg2: -1, end2: -1,
		size:     front + back,
		sizeBack: back,
		clock:    clk,
		st:       &stat{debugLvl: debugLvl, packageName: "cache/CircularCache"},
	}
}

func (c *CircularCache) initLocked() {
	c.buf = make([]byte, c.size)
	c.beg1, c.end1, c.time1, c.start1 = 0, 0, 0, 0
	c.beg2, c.end2, c.time2, c.start2 = -1, -1, 0, 0
	c.readPos = 0
	c.writePos = 0
	c.endOfInput = false
}

// Open implements Strategy.
func (c *CircularCache) Open() error {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.size <= 0 {
		c.st.errorf("Open: zero-sized buffer")
		return fmt.Errorf("mediacache: circular cache needs front+back > 0")
	}
	c.initLocked()
	c.written = sync.NewCond(&c.mux)
	c.space = sync.NewCond(&c.mux)
	c.opened = true
	return nil
}

// Close implements Strategy. Idempotent; releases the backing buffer.
func (c *CircularCache) Close() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.buf = nil
	c.opened = false
}

//--------  region membership / physical mapping helpers  ------------------------------------------------------------//

func (c *CircularCache) inRegion1(pos int64) bool {
	return c.beg1 != -1 && pos >= c.beg1 && pos <= c.end1
}

func (c *CircularCache) inRegion2(pos int64) bool {
	return c.beg2 != -1 && pos >= c.beg2 && pos <= c.end2
}

// regionOf returns region1/region2/regionNone for the region containing
// pos, preferring region1 when both (degenerate, zero-length) match.
func (c *CircularCache) regionOf(pos int64) int {
	if c.inRegion1(pos) {
		return region1
	}
	if c.inRegion2(pos) {
		return region2
	}
	return regionNone
}

func (c *CircularCache) isStale(t int64) bool {
	return t == 0 || t+CircularMaxAgeMillis < c.clock.NowMillis()
}

// physIndex maps file offset pos inside region (beg, start) to a physical
// index in [0, size).
func (c *CircularCache) physIndex(beg, start, pos int64) int64 {
	return mod(start+(pos-beg), c.size)
}

func mod(a, n int64) int64 {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

//--------  sizing  ----------------------------------------------------------------------------------------------//

// regionStats returns (beg, end, time, start) for region 1 or 2.
func (c *CircularCache) regionStats(r int) (beg, end, t, start int64) {
	if r == region1 {
		return c.beg1, c.end1, c.time1, c.start1
	}
	return c.beg2, c.end2, c.time2, c.start2
}

func other(r int) int {
	if r == region1 {
		return region2
	}
	return region1
}

// localCursor returns the point within region r that back/front sizes are
// measured from: readPos when the read cursor is actually sitting in r, or
// r's own beg when it isn't (a region the reader hasn't reached yet has
// nothing consumed, so all of it counts as front).
func (c *CircularCache) localCursor(r int) int64 {
	if c.regionOf(c.readPos) == r {
		return c.readPos
	}
	beg, _, _, _ := c.regionStats(r)
	if beg == -1 {
		return 0
	}
	return beg
}

// writeLimit computes how many more bytes the region currently holding
// writePos may accept right now: the whole buffer, minus the back-buffer
// bytes it must preserve behind its cursor (capped at sizeBack), minus its
// own front, plus the peer region's whole front when the peer is stale,
// or half of the amount by which the peer's front exceeds its own when
// the peer is fresh.
func (c *CircularCache) writeLimit() int64 {
	active := c.regionOf(c.writePos)
	if active == regionNone {
		active = region1
	}
	peer := other(active)

	begA, endA, _, _ := c.regionStats(active)
	_, endP, timeP, _ := c.regionStats(peer)

	curA := c.localCursor(active)
	backA := curA - begA
	if backA < 0 {
		backA = 0
	}
	frontA := endA - curA
	if frontA < 0 {
		frontA = 0
	}

	frontP := int64(0)
	if c.peerActive(peer) {
		frontP = endP - c.localCursor(peer)
		if frontP < 0 {
			frontP = 0
		}
	}

	backCap := backA
	if c.sizeBack < backCap {
		backCap = c.sizeBack
	}
	limit := c.size - backCap - frontA

	if c.isStale(timeP) {
		limit += frontP
	} else if frontP > frontA {
		limit += (frontP - frontA) / 2
	}
	return limit
}

// peerActive reports whether region r currently holds any data.
func (c *CircularCache) peerActive(r int) bool {
	beg, _, _, _ := c.regionStats(r)
	return beg != -1
}

func (c *CircularCache) regionLen(r int) int64 {
	beg, end, _, _ := c.regionStats(r)
	if beg == -1 {
		return 0
	}
	l := end - beg
	if l < 0 {
		return 0
	}
	return l
}

// GetMaxWriteSize implements Strategy.
func (c *CircularCache) GetMaxWriteSize(req int) int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.getMaxWriteSizeLocked(req)
}

func (c *CircularCache) getMaxWriteSizeLocked(req int) int {
	limit := c.writeLimit()
	if limit < 0 {
		limit = 0
	}
	if int64(req) < limit {
		return req
	}
	return int(limit)
}

// WriteToCache implements Strategy.
func (c *CircularCache) WriteToCache(buf []byte) (int, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if !c.opened {
		return 0, ErrClosed
	}

	active := c.regionOf(c.writePos)
	if active == regionNone {
		active = region1
	}
	peer := other(active)

	n := len(buf)
	if max := c.getMaxWriteSizeLocked(n); n > max {
		n = max
	}

	begA, endA, _, startA := c.regionStats(active)
	pos := c.physIndex(begA, startA, c.writePos)
	wrap := c.size - pos
	if int64(n) > wrap {
		n = int(wrap)
	}
	if n <= 0 {
		return 0, nil
	}

	copy(c.buf[pos:pos+int64(n)], buf[:n])

	newEnd := endA + int64(n)
	if active == region1 {
		c.end1 = newEnd
	} else {
		c.end2 = newEnd
	}
	c.writePos = newEnd

	// The two regions share one buffer of size c.size, so
	// activeLen+peerLen can never exceed it. Reclaim the overflow from
	// the peer's front first, but only if the peer has gone stale; any
	// overflow the peer can't (or shouldn't) absorb comes out of the
	// active region's own front instead — the same-region analogue of
	// the back-buffer guarantee's "writes may reclaim beyond size_back".
	peerLen := c.regionLen(peer)
	overflow := (newEnd - begA) + peerLen - c.size
	if overflow > 0 {
		_, _, timePeer, _ := c.regionStats(peer)
		fromPeer := int64(0)
		if c.isStale(timePeer) {
			fromPeer = overflow
			if fromPeer > peerLen {
				fromPeer = peerLen
			}
			if fromPeer > 0 {
				c.reclaimFront(peer, fromPeer)
				c.st.regionDisplace(fromPeer)
				c.st.staleReclaim(peer)
			}
		}
		if fromSelf := overflow - fromPeer; fromSelf > 0 {
			c.reclaimFront(active, fromSelf)
			c.st.regionDisplace(fromSelf)
		}
	}

	if n < len(buf) {
		c.st.shortWrite(len(buf), n)
	}
	c.written.Broadcast()
	return n, nil
}

// reclaimFront advances region r's beg (and rotates its start) by n
// bytes, capped at the region's own length, retiring it to unused when
// its length reaches zero.
func (c *CircularCache) reclaimFront(r int, n int64) {
	beg, end, _, start := c.regionStats(r)
	if beg == -1 {
		return
	}
	length := end - beg
	if n > length {
		n = length
	}
	if n <= 0 {
		return
	}
	beg += n
	start = mod(start+n, c.size)
	if beg >= end {
		beg, end, start = -1, -1, 0
	}
	if r == region1 {
		c.beg1, c.end1, c.start1 = beg, end, start
	} else {
		c.beg2, c.end2, c.start2 = beg, end, start
	}
}

// ReadFromCache implements Strategy.
func (c *CircularCache) ReadFromCache(buf []byte) (int, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if !c.opened {
		return 0, ErrClosed
	}

	r := c.regionOf(c.readPos)
	if r == regionNone {
		// readPos isn't in either region; nothing to serve without a Seek.
		if c.endOfInput {
			return 0, nil
		}
		c.st.wouldBlock()
		return 0, ErrWouldBlock
	}

	beg, end, _, start := c.regionStats(r)
	pos := c.physIndex(beg, start, c.readPos)
	front := end - c.readPos

	avail := c.size - pos
	if front < avail {
		avail = front
	}
	if int64(len(buf)) < avail {
		avail = int64(len(buf))
	}

	if avail <= 0 {
		if c.endOfInput {
			return 0, nil
		}
		c.st.wouldBlock()
		return 0, ErrWouldBlock
	}

	copy(buf[:avail], c.buf[pos:pos+avail])
	c.readPos += avail
	if r == region1 {
		c.time1 = c.clock.NowMillis()
	} else {
		c.time2 = c.clock.NowMillis()
	}

	c.st.hit()
	c.space.Broadcast()
	if int(avail) < len(buf) {
		c.st.shortRead(len(buf), int(avail))
	}
	return int(avail), nil
}

// WaitForData implements Strategy.
func (c *CircularCache) WaitForData(min int, millis int) (int64, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	avail := c.frontOfReadRegion()

	if millis == 0 || c.endOfInput {
		return avail, nil
	}

	// Account for two active sub-regions sharing the buffer.
	halfBudget := (c.size - c.sizeBack) / 2
	if int64(min) > halfBudget {
		min = int(halfBudget)
	}

	deadline := time.Now().Add(time.Duration(millis) * time.Millisecond)
	for !c.endOfInput && avail < int64(min) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.st.timeout(millis)
			return avail, ErrTimeout
		}
		step := remaining
		if step > 50*time.Millisecond {
			step = 50 * time.Millisecond
		}
		waitBounded(c.written, step)
		avail = c.frontOfReadRegion()
	}
	return avail, nil
}

func (c *CircularCache) frontOfReadRegion() int64 {
	r := c.regionOf(c.readPos)
	if r == regionNone {
		return 0
	}
	_, end, _, _ := c.regionStats(r)
	return end - c.readPos
}

// Seek implements Strategy.
func (c *CircularCache) Seek(filePos int64) (int64, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.inRegion1(filePos) || c.inRegion2(filePos) {
		c.readPos = filePos
		return filePos, nil
	}

	waitEnd := int64(-1)
	if c.beg1 != -1 && filePos >= c.end1 && filePos < c.end1+SeekWaitWindow {
		waitEnd = c.end1
	} else if c.beg2 != -1 && filePos >= c.end2 && filePos < c.end2+SeekWaitWindow {
		waitEnd = c.end2
	}

	if waitEnd >= 0 {
		c.readPos = waitEnd
		gap := int(filePos - waitEnd)
		c.mux.Unlock()
		_, _ = c.WaitForData(gap, SeekWaitMillis)
		c.mux.Lock()
		if c.inRegion1(filePos) || c.inRegion2(filePos) {
			c.readPos = filePos
			return filePos, nil
		}
	}

	c.st.seekError(filePos)
	return 0, ErrSeekUnreachable
}

// Reset implements Strategy.
func (c *CircularCache) Reset(filePos int64, clearAnyway bool) bool {
	c.mux.Lock()
	defer c.mux.Unlock()

	if !clearAnyway && (c.inRegion1(filePos) || c.inRegion2(filePos)) {
		c.readPos = filePos
		c.st.reset(filePos, false)
		return false
	}

	cur := c.regionOf(c.writePos)
	if cur == regionNone {
		cur = region1
	}
	peer := other(cur)

	target := cur
	_, _, timeP, _ := c.regionStats(peer)
	if !c.peerActive(peer) || c.isStale(timeP) {
		target = peer
		if c.peerActive(peer) {
			c.st.staleReclaim(peer)
		}
	}

	// Seed the chosen region far enough from the other region's physical
	// footprint that new writes won't immediately collide with it.
	otherR := other(target)
	var start int64
	if c.peerActive(otherR) {
		_, _, _, os := c.regionStats(otherR)
		start = mod(os+c.regionLen(otherR), c.size)
	} else {
		start = 0
	}

	if target == region1 {
		c.beg1, c.end1, c.time1, c.start1 = filePos, filePos, 0, start
	} else {
		c.beg2, c.end2, c.time2, c.start2 = filePos, filePos, 0, start
	}

	c.readPos = filePos
	c.writePos = filePos
	c.st.reset(filePos, true)
	return true
}

// EndOfInput implements Strategy.
func (c *CircularCache) EndOfInput() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.endOfInput = true
	c.written.Broadcast()
}

// ClearEndOfInput implements Strategy.
func (c *CircularCache) ClearEndOfInput() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.endOfInput = false
}

// IsEndOfInput implements Strategy.
func (c *CircularCache) IsEndOfInput() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.endOfInput
}

// CachedDataBeginPos implements Strategy, reporting the region the read
// cursor currently occupies.
func (c *CircularCache) CachedDataBeginPos() int64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	r := c.regionOf(c.readPos)
	if r == regionNone {
		return c.readPos
	}
	beg, _, _, _ := c.regionStats(r)
	return beg
}

// CachedDataEndPos implements Strategy.
func (c *CircularCache) CachedDataEndPos() int64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	r := c.regionOf(c.readPos)
	if r == regionNone {
		return c.readPos
	}
	_, end, _, _ := c.regionStats(r)
	return end
}

// CachedDataEndPosIfSeekTo implements Strategy.
func (c *CircularCache) CachedDataEndPosIfSeekTo(filePos int64) int64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.inRegion1(filePos) {
		return c.end1
	}
	if c.inRegion2(filePos) {
		return c.end2
	}
	return filePos
}

// IsCachedPosition implements Strategy.
func (c *CircularCache) IsCachedPosition(filePos int64) bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.inRegion1(filePos) || c.inRegion2(filePos)
}

// CreateNew implements Strategy.
func (c *CircularCache) CreateNew() Strategy {
	c.mux.Lock()
	defer c.mux.Unlock()
	return NewCircularCache(c.size-c.sizeBack, c.sizeBack, c.clock, c.st.debugLvl)
}

// Stat returns a snapshot of this instance's best-effort counters.
func (c *CircularCache) Stat() map[string]uint64 {
	return c.st.Snapshot()
}
