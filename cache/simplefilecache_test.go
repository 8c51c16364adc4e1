package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/mediacache/mediacache/platform"
)

func newTestSimpleFileCache(t *testing.T) *SimpleFileCache {
	c := NewSimpleFileCache(platform.OSFileSystem{}, t.TempDir(), DebugOff)
	if err := c.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func seqBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestSimpleFileCache_LinearWriteRead(t *testing.T) {
	c := newTestSimpleFileCache(t)

	data := seqBytes(64)
	n, err := c.WriteToCache(data)
	if err != nil || n != len(data) {
		t.Fatalf("WriteToCache: n=%d err=%v", n, err)
	}

	got := make([]byte, 64)
	n, err = c.ReadFromCache(got)
	if err != nil || n != 64 {
		t.Fatalf("ReadFromCache: n=%d err=%v", n, err)
	}
	for i := range got {
		if got[i] != data[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], data[i])
		}
	}
}

func TestSimpleFileCache_WouldBlockThenEOF(t *testing.T) {
	c := newTestSimpleFileCache(t)

	buf := make([]byte, 8)
	_, err := c.ReadFromCache(buf)
	if err != ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}

	c.EndOfInput()
	n, err := c.ReadFromCache(buf)
	if err != nil || n != 0 {
		t.Fatalf("after EndOfInput: n=%d err=%v", n, err)
	}
}

func TestSimpleFileCache_SeekBackwardWithinWritten(t *testing.T) {
	c := newTestSimpleFileCache(t)

	data := seqBytes(100)
	if _, err := c.WriteToCache(data); err != nil {
		t.Fatalf("WriteToCache: %v", err)
	}
	buf := make([]byte, 100)
	if _, err := c.ReadFromCache(buf); err != nil {
		t.Fatalf("ReadFromCache: %v", err)
	}

	if pos, err := c.Seek(10); err != nil || pos != 10 {
		t.Fatalf("Seek: pos=%d err=%v", pos, err)
	}
	got := make([]byte, 5)
	n, err := c.ReadFromCache(got)
	if err != nil || n != 5 {
		t.Fatalf("ReadFromCache after seek: n=%d err=%v", n, err)
	}
	for i, b := range got {
		if b != data[10+i] {
			t.Fatalf("byte %d: got %d want %d", i, b, data[10+i])
		}
	}
}

func TestSimpleFileCache_SeekUnreachable(t *testing.T) {
	c := newTestSimpleFileCache(t)
	c.EndOfInput()

	_, err := c.Seek(10 + SimpleFileCacheMaxSeekGap)
	if err != ErrSeekUnreachable {
		t.Fatalf("expected ErrSeekUnreachable, got %v", err)
	}
}

func TestSimpleFileCache_SeekBeforeStart(t *testing.T) {
	c := newTestSimpleFileCache(t)
	c.Reset(1000, true)

	_, err := c.Seek(500)
	if err != ErrSeekBeforeStart {
		t.Fatalf("expected ErrSeekBeforeStart, got %v", err)
	}
}

func TestSimpleFileCache_ResetDiscardsWhenNotCached(t *testing.T) {
	c := newTestSimpleFileCache(t)
	if _, err := c.WriteToCache(seqBytes(16)); err != nil {
		t.Fatalf("WriteToCache: %v", err)
	}

	discarded := c.Reset(1000, false)
	if !discarded {
		t.Fatalf("expected Reset to report discarded for an uncached position")
	}
	if c.CachedDataBeginPos() != 1000 || c.CachedDataEndPos() != 1000 {
		t.Fatalf("begin=%d end=%d, want both 1000", c.CachedDataBeginPos(), c.CachedDataEndPos())
	}
}

func TestSimpleFileCache_ResetKeepsCachedPosition(t *testing.T) {
	c := newTestSimpleFileCache(t)
	if _, err := c.WriteToCache(seqBytes(16)); err != nil {
		t.Fatalf("WriteToCache: %v", err)
	}
	buf := make([]byte, 16)
	if _, err := c.ReadFromCache(buf); err != nil {
		t.Fatalf("ReadFromCache: %v", err)
	}

	discarded := c.Reset(4, false)
	if discarded {
		t.Fatalf("expected Reset to keep cached data for a position still in range")
	}
	if c.CachedDataBeginPos() != 0 || c.CachedDataEndPos() != 16 {
		t.Fatalf("begin=%d end=%d, want 0,16", c.CachedDataBeginPos(), c.CachedDataEndPos())
	}
}

func TestSimpleFileCache_WaitForDataWakesOnWrite(t *testing.T) {
	c := newTestSimpleFileCache(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		avail, err := c.WaitForData(8, 2000)
		if err != nil {
			t.Errorf("WaitForData: %v", err)
		}
		if avail < 8 {
			t.Errorf("WaitForData returned avail=%d, want >= 8", avail)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := c.WriteToCache(seqBytes(8)); err != nil {
		t.Fatalf("WriteToCache: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForData did not return after write")
	}
}

func TestSimpleFileCache_WaitForDataTimesOut(t *testing.T) {
	c := newTestSimpleFileCache(t)
	_, err := c.WaitForData(8, 30)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestRaceSimpleFileCache_WriteRead(t *testing.T) {
	c := newTestSimpleFileCache(t)

	const total = 1 << 16
	data := seqBytes(total)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		off := 0
		for off < total {
			n, err := c.WriteToCache(data[off:min(off+4096, total)])
			if err != nil {
				t.Errorf("WriteToCache: %v", err)
				return
			}
			off += n
		}
		c.EndOfInput()
	}()

	go func() {
		defer wg.Done()
		got := make([]byte, total)
		off := 0
		for off < total {
			if _, err := c.WaitForData(1, 2000); err != nil {
				t.Errorf("WaitForData: %v", err)
				return
			}
			n, err := c.ReadFromCache(got[off:])
			if err != nil && err != ErrWouldBlock {
				t.Errorf("ReadFromCache: %v", err)
				return
			}
			off += n
		}
		for i := range got {
			if got[i] != data[i] {
				t.Errorf("byte %d: got %d want %d", i, got[i], data[i])
				return
			}
		}
	}()

	wg.Wait()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
