package cache

import (
	"sync"

	"github.com/mediacache/mediacache/clock"
)

// DoubleCache is a composite strategy wrapping two peer strategies (usually
// one CircularCache tuned for recent data and one SimpleFileCache spooling
// everything to disk) and routing reads and writes between them. Exactly
// one peer is "the write cache" at any time and exactly one is "the read
// cache" — usually the same peer, but a Reset can split them apart until
// the reader catches up to wherever the writer moved to.
type DoubleCache struct {
	mux sync.Mutex

	a, b                  Strategy
	writeCache, readCache Strategy

	// pos and writePos are the read and write cursors' file positions. A
	// Strategy only exposes region bounds, not the cursor itself, so
	// DoubleCache tracks both directly: pos to ask a peer "do you have
	// this cached?" when the read cache runs dry, writePos to follow the
	// write cursor, including across a switch to the peer.
	pos, writePos int64

	lastUseA, lastUseB int64

	clock clock.Clock
	st    *stat
}

var _ Strategy = (*DoubleCache)(nil)

// NewDoubleCache returns a DoubleCache wrapping peers a and b. clk drives
// the staleness comparisons used to decide when a peer may be switched
// away from; nil selects the real wall clock.
func NewDoubleCache(a, b Strategy, clk clock.Clock, debugLvl int) *DoubleCache {
	if clk == nil {
		clk = clock.Real{}
	}
	return &DoubleCache{
		a:     a,
		b:     b,
		clock: clk,
		st:    &stat{debugLvl: debugLvl, packageName: "cache/DoubleCache"},
	}
}

// Open implements Strategy.
func (d *DoubleCache) Open() error {
	d.mux.Lock()
	defer d.mux.Unlock()

	if err := d.a.Open(); err != nil {
		d.st.errorf("Open: cache A: %v", err)
		return err
	}
	if err := d.b.Open(); err != nil {
		d.st.errorf("Open: cache B: %v", err)
		d.a.Close()
		return err
	}
	d.writeCache = d.a
	d.readCache = d.a
	d.pos = 0
	d.writePos = 0
	d.lastUseA = 0
	d.lastUseB = 0
	return nil
}

// Close implements Strategy.
func (d *DoubleCache) Close() {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.a.Close()
	d.b.Close()
}

func (d *DoubleCache) peerOf(s Strategy) Strategy {
	if s == d.a {
		return d.b
	}
	return d.a
}

func (d *DoubleCache) lastUse(s Strategy) int64 {
	if s == d.a {
		return d.lastUseA
	}
	return d.lastUseB
}

func (d *DoubleCache) touch(s Strategy) {
	if s == d.a {
		d.lastUseA = d.clock.NowMillis()
	} else {
		d.lastUseB = d.clock.NowMillis()
	}
}

func (d *DoubleCache) isStalePeer(s Strategy) bool {
	t := d.lastUse(s)
	return t == 0 || t+DoubleCacheAgeMillis < d.clock.NowMillis()
}

// GetMaxWriteSize implements Strategy. The write cache's own room is
// topped up with the peer's room too, as long as the peer is stale enough
// that writing into it wouldn't clobber data the reader might still want.
func (d *DoubleCache) GetMaxWriteSize(req int) int {
	d.mux.Lock()
	defer d.mux.Unlock()
	n := d.writeCache.GetMaxWriteSize(req)
	if n < req {
		peer := d.peerOf(d.writeCache)
		if d.isStalePeer(peer) {
			n += peer.GetMaxWriteSize(req - n)
		}
	}
	return n
}

// WriteToCache implements Strategy. A short write from the current write
// cache is treated as a signal to try its peer: if the peer hasn't been
// touched recently, writing continues there instead.
func (d *DoubleCache) WriteToCache(buf []byte) (int, error) {
	d.mux.Lock()
	defer d.mux.Unlock()

	n, err := d.writeCache.WriteToCache(buf)
	d.touch(d.writeCache)
	d.writePos += int64(n)
	if err != nil {
		return n, err
	}

	if n < len(buf) {
		peer := d.peerOf(d.writeCache)
		if d.isStalePeer(peer) {
			origin := d.writeCache.CachedDataEndPos() + 1
			peer.Reset(origin, true)
			d.writeCache = peer
			d.writePos = origin
			more, err2 := peer.WriteToCache(buf[n:])
			d.touch(peer)
			d.writePos += int64(more)
			n += more
			if err2 != nil {
				return n, err2
			}
		}
		if n < len(buf) {
			d.st.shortWrite(len(buf), n)
		}
	}
	return n, nil
}

// ReadFromCache implements Strategy. When the read cache reports nothing
// available but isn't at end of input, or hands back fewer bytes than
// asked for, the adjacent peer is checked: a Reset or a producer switch
// may have moved the data the reader wants there instead, and if the
// peer picks up exactly where the read cache left off (or one position
// past it, where WriteToCache's switch anchors it), the remainder is
// filled in from it within this same call.
func (d *DoubleCache) ReadFromCache(buf []byte) (int, error) {
	d.mux.Lock()
	defer d.mux.Unlock()

	n, err := d.readCache.ReadFromCache(buf)
	if err == ErrWouldBlock || (err == nil && n > 0 && n < len(buf)) {
		peer := d.peerOf(d.readCache)
		next := d.pos + int64(n)
		if !peer.IsCachedPosition(next) && peer.IsCachedPosition(next+1) {
			// WriteToCache anchors a switched-to peer one past the outgoing
			// cache's end, so the reader steps over that one position.
			next++
		}
		if peer.IsCachedPosition(next) {
			d.readCache = peer
			d.pos = next - int64(n)
			more, err2 := peer.ReadFromCache(buf[n:])
			n += more
			err = err2
		}
	}
	if n > 0 {
		d.pos += int64(n)
		d.touch(d.readCache)
	}
	return n, err
}

// WaitForData implements Strategy.
func (d *DoubleCache) WaitForData(min int, millis int) (int64, error) {
	d.mux.Lock()
	rc := d.readCache
	d.mux.Unlock()
	return rc.WaitForData(min, millis)
}

// Seek implements Strategy. Whichever peer actually holds filePos becomes
// the read cache.
func (d *DoubleCache) Seek(filePos int64) (int64, error) {
	d.mux.Lock()
	defer d.mux.Unlock()

	if pos, err := d.readCache.Seek(filePos); err == nil {
		d.pos = pos
		return pos, nil
	}

	peer := d.peerOf(d.readCache)
	pos, err := peer.Seek(filePos)
	if err != nil {
		d.st.seekError(filePos)
		return 0, err
	}
	d.readCache = peer
	d.pos = pos
	return pos, nil
}

// Reset implements Strategy. The peer that already has filePos cached
// wins outright; if both do, the one whose cached region reaches farther
// past filePos wins, since it saves the next reader more re-fetching.
// Otherwise the older (or, on a tie, cache A) is re-anchored and becomes
// both the read and write cache.
func (d *DoubleCache) Reset(filePos int64, clearAnyway bool) bool {
	d.mux.Lock()
	defer d.mux.Unlock()

	if !clearAnyway {
		aHas := d.a.IsCachedPosition(filePos)
		bHas := d.b.IsCachedPosition(filePos)
		if aHas || bHas {
			target := d.a
			if bHas && (!aHas || d.b.CachedDataEndPosIfSeekTo(filePos) > d.a.CachedDataEndPosIfSeekTo(filePos)) {
				target = d.b
			}
			d.readCache = target
			target.Reset(filePos, false)
			d.pos = filePos
			d.st.reset(filePos, false)
			return false
		}
	}

	target := d.a
	if d.lastUseB < d.lastUseA {
		target = d.b
	}
	target.Reset(filePos, true)
	d.readCache = target
	d.writeCache = target
	d.pos = filePos
	d.writePos = filePos
	d.touch(target)
	d.st.reset(filePos, true)
	return true
}

// EndOfInput implements Strategy, marking it on the write cache — the
// peer actively receiving producer bytes.
func (d *DoubleCache) EndOfInput() {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.writeCache.EndOfInput()
}

// ClearEndOfInput implements Strategy.
func (d *DoubleCache) ClearEndOfInput() {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.a.ClearEndOfInput()
	d.b.ClearEndOfInput()
}

// IsEndOfInput implements Strategy, read from the read cache — the peer
// actually serving the consumer.
func (d *DoubleCache) IsEndOfInput() bool {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.readCache.IsEndOfInput()
}

// CachedDataBeginPos implements Strategy.
func (d *DoubleCache) CachedDataBeginPos() int64 {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.readCache.CachedDataBeginPos()
}

// CachedDataEndPos implements Strategy.
func (d *DoubleCache) CachedDataEndPos() int64 {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.readCache.CachedDataEndPos()
}

// CachedDataEndPosIfSeekTo implements Strategy, taking the better of what
// either peer could offer.
func (d *DoubleCache) CachedDataEndPosIfSeekTo(filePos int64) int64 {
	d.mux.Lock()
	defer d.mux.Unlock()
	ea := d.a.CachedDataEndPosIfSeekTo(filePos)
	eb := d.b.CachedDataEndPosIfSeekTo(filePos)
	if eb > ea {
		return eb
	}
	return ea
}

// IsCachedPosition implements Strategy.
func (d *DoubleCache) IsCachedPosition(filePos int64) bool {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.a.IsCachedPosition(filePos) || d.b.IsCachedPosition(filePos)
}

// CreateNew implements Strategy.
func (d *DoubleCache) CreateNew() Strategy {
	d.mux.Lock()
	defer d.mux.Unlock()
	return NewDoubleCache(d.a.CreateNew(), d.b.CreateNew(), d.clock, d.st.debugLvl)
}

// Stat returns a snapshot of this instance's best-effort counters.
func (d *DoubleCache) Stat() map[string]uint64 {
	return d.st.Snapshot()
}
