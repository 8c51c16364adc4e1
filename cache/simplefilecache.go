package cache

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mediacache/mediacache/platform"
)

// SimpleFileCache is a monotonically growing on-disk spool: the leaf
// strategy for effectively-unbounded back buffers.
type SimpleFileCache struct {
	fs  platform.FileSystem
	dir string

	mux       sync.Mutex
	dataAvail *sync.Cond // signalled on write and on EndOfInput
	space     *sync.Cond // signalled on read, for producer backpressure

	filename string
	write    platform.File
	read     platform.File

	startPosition int64
	writePosition int64
	readPosition  int64
	endOfInput    bool
	closed        bool

	st *stat
}

var _ Strategy = (*SimpleFileCache)(nil)

// NewSimpleFileCache returns a SimpleFileCache that spools into dir
// (fs.TempDir() if dir is empty) using fs for file operations
// (platform.OSFileSystem{} if fs is nil). debugLvl is one of
// DebugOff/DebugLow/DebugHigh.
func NewSimpleFileCache(fs platform.FileSystem, dir string, debugLvl int) *SimpleFileCache {
	if fs == nil {
		fs = platform.OSFileSystem{}
	}
	if dir == "" {
		dir = fs.TempDir()
	}
	c := &SimpleFileCache{
		fs:  fs,
		dir: dir,
		st:  &stat{debugLvl: debugLvl, packageName: "cache/SimpleFileCache"},
	}
	c.dataAvail = sync.NewCond(&c.mux)
	c.space = sync.NewCond(&c.mux)
	return c
}

// Open implements Strategy.
func (c *SimpleFileCache) Open() error {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.closeLocked()

	name, wf, err := platform.NextCacheFile(c.fs, c.dir, maxSpoolFileIndex)
	if err != nil {
		c.st.errorf("Open: %v", err)
		return err
	}
	rf, err := c.fs.Open(name)
	if err != nil {
		c.st.errorf("Open: failed to open %q for reading: %v", name, err)
		_ = wf.Close()
		_ = c.fs.Remove(name)
		return err
	}

	c.filename = name
	c.write = wf
	c.read = rf
	c.startPosition = 0
	c.writePosition = 0
	c.readPosition = 0
	c.endOfInput = false
	c.closed = false
	return nil
}

// Close implements Strategy.
func (c *SimpleFileCache) Close() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.closeLocked()
}

func (c *SimpleFileCache) closeLocked() {
	if c.write != nil {
		if err := c.write.Close(); err != nil {
			c.st.warn("close write handle: %v", err)
		}
		c.write = nil
	}
	if c.read != nil {
		if err := c.read.Close(); err != nil {
			c.st.warn("close read handle: %v", err)
		}
		c.read = nil
	}
	if c.filename != "" {
		if err := c.fs.Remove(c.filename); err != nil {
			c.st.warn("remove spool file %q: %v", c.filename, err)
		}
		c.filename = ""
	}
	c.closed = true
}

// GetMaxWriteSize implements Strategy. A disk spool can always accept the
// full request.
func (c *SimpleFileCache) GetMaxWriteSize(req int) int {
	return req
}

// WriteToCache implements Strategy.
func (c *SimpleFileCache) WriteToCache(buf []byte) (int, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	written := 0
	for written < len(buf) {
		n, err := c.write.Write(buf[written:])
		if n <= 0 {
			c.st.errorf("WriteToCache: write failed: %v", err)
			return written, fmt.Errorf("mediacache: write to spool failed: %w", err)
		}
		c.writePosition += int64(n)
		written += n
	}

	c.dataAvail.Broadcast()
	return written, nil
}

// available returns the bytes between the read and write cursors. Caller
// must hold c.mux.
func (c *SimpleFileCache) available() int64 {
	return c.writePosition - c.readPosition
}

// ReadFromCache implements Strategy.
func (c *SimpleFileCache) ReadFromCache(buf []byte) (int, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	avail := c.available()
	if avail <= 0 {
		if c.endOfInput {
			return 0, nil
		}
		c.st.wouldBlock()
		return 0, ErrWouldBlock
	}

	toRead := int64(len(buf))
	if toRead > avail {
		toRead = avail
	}

	read := int64(0)
	for read < toRead {
		n, err := c.read.Read(buf[read:toRead])
		if n == 0 && err != nil && err != io.EOF {
			c.st.errorf("ReadFromCache: read failed: %v", err)
			return int(read), err
		}
		if n == 0 {
			break
		}
		c.readPosition += int64(n)
		read += int64(n)
	}

	if read > 0 {
		c.st.hit()
		c.space.Broadcast()
	}
	if int(read) < len(buf) {
		c.st.shortRead(len(buf), int(read))
	}
	return int(read), nil
}

// WaitForData implements Strategy.
func (c *SimpleFileCache) WaitForData(min int, millis int) (int64, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if millis == 0 || c.endOfInput {
		return c.available(), nil
	}

	deadline := time.Now().Add(time.Duration(millis) * time.Millisecond)
	for {
		avail := c.available()
		if avail >= int64(min) || c.endOfInput {
			return avail, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.st.timeout(millis)
			return avail, ErrTimeout
		}
		waitBounded(c.dataAvail, remaining)
	}
}

// Seek implements Strategy.
func (c *SimpleFileCache) Seek(filePos int64) (int64, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	target := filePos - c.startPosition
	if target < 0 {
		c.st.seekError(filePos)
		return 0, ErrSeekBeforeStart
	}

	diff := target - c.writePosition
	if diff > SimpleFileCacheMaxSeekGap {
		c.st.seekError(filePos)
		return 0, ErrSeekUnreachable
	}
	if diff > 0 {
		// Release the lock while waiting so the producer can make progress.
		min := int(target - c.readPosition)
		c.mux.Unlock()
		_, err := c.WaitForData(min, SeekWaitMillis)
		c.mux.Lock()
		if err == ErrTimeout || target > c.writePosition {
			c.st.seekError(filePos)
			return 0, ErrSeekUnreachable
		}
	}

	pos, err := c.read.Seek(target, io.SeekStart)
	if err != nil {
		c.st.errorf("Seek: %v", err)
		return 0, err
	}
	c.readPosition = pos
	if pos != target {
		c.st.errorf("Seek: landed at %d, wanted %d", pos, target)
		return 0, fmt.Errorf("mediacache: seek landed at %d, wanted %d", pos, target)
	}

	c.space.Broadcast()
	return filePos, nil
}

// Reset implements Strategy.
func (c *SimpleFileCache) Reset(filePos int64, clearAnyway bool) bool {
	c.mux.Lock()
	defer c.mux.Unlock()

	if !clearAnyway && c.isCachedPositionLocked(filePos) {
		pos, err := c.read.Seek(filePos-c.startPosition, io.SeekStart)
		if err != nil {
			c.st.errorf("Reset: reposition failed: %v", err)
		} else {
			c.readPosition = pos
		}
		c.st.reset(filePos, false)
		return false
	}

	c.startPosition = filePos
	wp, err := c.write.Seek(0, io.SeekStart)
	if err != nil {
		c.st.errorf("Reset: rewind write handle failed: %v", err)
	}
	rp, err := c.read.Seek(0, io.SeekStart)
	if err != nil {
		c.st.errorf("Reset: rewind read handle failed: %v", err)
	}
	c.writePosition = wp
	c.readPosition = rp
	c.st.reset(filePos, true)
	return true
}

// EndOfInput implements Strategy.
func (c *SimpleFileCache) EndOfInput() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.endOfInput = true
	c.dataAvail.Broadcast()
}

// ClearEndOfInput implements Strategy.
func (c *SimpleFileCache) ClearEndOfInput() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.endOfInput = false
}

// IsEndOfInput implements Strategy.
func (c *SimpleFileCache) IsEndOfInput() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.endOfInput
}

// CachedDataBeginPos implements Strategy.
func (c *SimpleFileCache) CachedDataBeginPos() int64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.startPosition
}

// CachedDataEndPos implements Strategy.
func (c *SimpleFileCache) CachedDataEndPos() int64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.startPosition + c.writePosition
}

// CachedDataEndPosIfSeekTo implements Strategy.
func (c *SimpleFileCache) CachedDataEndPosIfSeekTo(filePos int64) int64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.isCachedPositionLocked(filePos) {
		return c.startPosition + c.writePosition
	}
	return filePos
}

// IsCachedPosition implements Strategy.
func (c *SimpleFileCache) IsCachedPosition(filePos int64) bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.isCachedPositionLocked(filePos)
}

func (c *SimpleFileCache) isCachedPositionLocked(filePos int64) bool {
	return filePos >= c.startPosition && filePos <= c.startPosition+c.writePosition
}

// CreateNew implements Strategy.
func (c *SimpleFileCache) CreateNew() Strategy {
	return NewSimpleFileCache(c.fs, c.dir, c.st.debugLvl)
}

// Stat returns a snapshot of this instance's best-effort counters.
func (c *SimpleFileCache) Stat() map[string]uint64 {
	return c.st.Snapshot()
}
