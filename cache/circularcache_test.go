package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/mediacache/mediacache/clock"
)

func newTestCircularCache(t *testing.T, front, back int64, clk clock.Clock) *CircularCache {
	c := NewCircularCache(front, back, clk, DebugOff)
	if err := c.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCircularCache_LinearWriteRead(t *testing.T) {
	c := newTestCircularCache(t, 16, 16, clock.NewFake(0))

	data := seqBytes(32)
	n, err := c.WriteToCache(data)
	if err != nil || n != 32 {
		t.Fatalf("WriteToCache: n=%d err=%v", n, err)
	}

	got := make([]byte, 32)
	n, err = c.ReadFromCache(got)
	if err != nil || n != 32 {
		t.Fatalf("ReadFromCache: n=%d err=%v", n, err)
	}
	for i := range got {
		if got[i] != data[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], data[i])
		}
	}
}

func TestCircularCache_BackBufferRewind(t *testing.T) {
	c := newTestCircularCache(t, 16, 16, clock.NewFake(0))

	data := seqBytes(32)
	if _, err := c.WriteToCache(data); err != nil {
		t.Fatalf("WriteToCache: %v", err)
	}
	full := make([]byte, 32)
	if _, err := c.ReadFromCache(full); err != nil {
		t.Fatalf("ReadFromCache: %v", err)
	}

	if pos, err := c.Seek(24); err != nil || pos != 24 {
		t.Fatalf("Seek: pos=%d err=%v", pos, err)
	}
	tail := make([]byte, 8)
	n, err := c.ReadFromCache(tail)
	if err != nil || n != 8 {
		t.Fatalf("ReadFromCache after rewind: n=%d err=%v", n, err)
	}
	for i, b := range tail {
		if b != data[24+i] {
			t.Fatalf("byte %d: got %d want %d", i, b, data[24+i])
		}
	}
}

// TestCircularCache_BackBufferGuaranteeUnderSelfReclaim drives the exact
// scenario-2 parameters (front=8, back=8, size=16) across 32 bytes fed
// through multiple WriteToCache calls interleaved with reads: the first
// write fills the 16-byte buffer, and from then on the active region's
// budget (8 bytes) forces it to self-reclaim history beyond size_back on
// every later lap rather than ever handing off to the (never-used) peer
// region. A wrong self-reclaim would corrupt the
// guaranteed 8 bytes behind the cursor; this pins that it doesn't.
func TestCircularCache_BackBufferGuaranteeUnderSelfReclaim(t *testing.T) {
	c := newTestCircularCache(t, 8, 8, clock.NewFake(0))

	data := seqBytes(32)
	got := make([]byte, 32)
	written, read := 0, 0
	for written < 32 || read < written {
		if written < 32 {
			if n := c.GetMaxWriteSize(32 - written); n > 0 {
				wn, err := c.WriteToCache(data[written : written+n])
				if err != nil {
					t.Fatalf("WriteToCache: %v", err)
				}
				written += wn
			}
		}
		if read < written {
			rn, err := c.ReadFromCache(got[read:written])
			if err != nil && err != ErrWouldBlock {
				t.Fatalf("ReadFromCache: %v", err)
			}
			read += rn
		}
	}
	for i := range got {
		if got[i] != data[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], data[i])
		}
	}

	// Rewind into the guaranteed back buffer: the most recent 8 bytes
	// must have survived every self-reclaim along the way.
	if pos, err := c.Seek(24); err != nil || pos != 24 {
		t.Fatalf("Seek: pos=%d err=%v", pos, err)
	}
	tail := make([]byte, 8)
	n, err := c.ReadFromCache(tail)
	if err != nil || n != 8 {
		t.Fatalf("ReadFromCache after rewind: n=%d err=%v", n, err)
	}
	for i, b := range tail {
		if b != data[24+i] {
			t.Fatalf("byte %d: got %d want %d", i, b, data[24+i])
		}
	}

	// file position 0 predates the guarantee window and must have been
	// legitimately reclaimed, not merely mislabeled as still cached.
	if c.IsCachedPosition(0) {
		t.Fatal("expected file position 0 to have been reclaimed by self-displacement")
	}
}

func TestCircularCache_DualRegionRecall(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCircularCache(t, 8, 8, clk)

	data := seqBytes(16)
	if _, err := c.WriteToCache(data); err != nil {
		t.Fatalf("WriteToCache: %v", err)
	}
	full := make([]byte, 16)
	if _, err := c.ReadFromCache(full); err != nil {
		t.Fatalf("ReadFromCache: %v", err)
	}

	// the only region is fully consumed and timestamped stale-from-birth
	// (time1 == 0 counts as stale), so Reset claims the unused peer region
	// and the next write is free to displace region1's oldest bytes.
	if !c.Reset(100, true) {
		t.Fatal("expected Reset to discard and re-anchor")
	}

	fresh := []byte{0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27}
	n, err := c.WriteToCache(fresh)
	if err != nil || n != 8 {
		t.Fatalf("WriteToCache into new region: n=%d err=%v", n, err)
	}

	// region1's surviving tail (file positions 8..16, displaced by 8 of
	// its original 16 bytes) should still be recallable without the
	// producer re-sending it.
	if !c.IsCachedPosition(12) {
		t.Fatal("expected file position 12 to still be cached after partial displacement")
	}
	if pos, err := c.Seek(12); err != nil || pos != 12 {
		t.Fatalf("Seek to displaced-but-surviving position: pos=%d err=%v", pos, err)
	}
	tail := make([]byte, 4)
	n, err = c.ReadFromCache(tail)
	if err != nil || n != 4 {
		t.Fatalf("ReadFromCache recall: n=%d err=%v", n, err)
	}
	for i, b := range tail {
		if b != data[12+i] {
			t.Fatalf("byte %d: got %d want %d", i, b, data[12+i])
		}
	}

	// the new region is reachable too.
	if pos, err := c.Seek(100); err != nil || pos != 100 {
		t.Fatalf("Seek to new region: pos=%d err=%v", pos, err)
	}
	head := make([]byte, 4)
	if _, err := c.ReadFromCache(head); err != nil {
		t.Fatalf("ReadFromCache new region: %v", err)
	}
	for i, b := range head {
		if b != fresh[i] {
			t.Fatalf("byte %d: got %d want %d", i, b, fresh[i])
		}
	}
}

func TestCircularCache_SeekFarBeyondWindowFails(t *testing.T) {
	c := newTestCircularCache(t, 16, 16, clock.NewFake(0))
	c.EndOfInput()

	_, err := c.Seek(SeekWaitWindow + 1000)
	if err != ErrSeekUnreachable {
		t.Fatalf("expected ErrSeekUnreachable, got %v", err)
	}
}

func TestCircularCache_ShortForwardSeekWaits(t *testing.T) {
	c := newTestCircularCache(t, 64, 64, clock.NewFake(0))

	if _, err := c.WriteToCache(seqBytes(16)); err != nil {
		t.Fatalf("WriteToCache: %v", err)
	}

	done := make(chan struct{})
	var seekErr error
	var seekPos int64
	go func() {
		defer close(done)
		seekPos, seekErr = c.Seek(20)
	}()

	time.Sleep(20 * time.Millisecond)
	more := seqBytes(16)
	for i := range more {
		more[i] = byte(16 + i)
	}
	if _, err := c.WriteToCache(more); err != nil {
		t.Fatalf("WriteToCache: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Seek did not return after producer caught up")
	}
	if seekErr != nil || seekPos != 20 {
		t.Fatalf("Seek: pos=%d err=%v", seekPos, seekErr)
	}
}

func TestCircularCache_StaleRegionReclaimed(t *testing.T) {
	clk := clock.NewFake(1000)
	c := newTestCircularCache(t, 8, 8, clk)

	if _, err := c.WriteToCache(seqBytes(16)); err != nil {
		t.Fatalf("WriteToCache: %v", err)
	}
	full := make([]byte, 16)
	if _, err := c.ReadFromCache(full); err != nil {
		t.Fatalf("ReadFromCache: %v", err)
	}

	// time1 now reflects clk's reading at the last read; advance far past
	// the staleness threshold before reclaiming into the peer region.
	clk.Advance(CircularMaxAgeMillis + 1)

	c.Reset(500, true)
	n, err := c.WriteToCache(seqBytes(8))
	if err != nil || n != 8 {
		t.Fatalf("WriteToCache into stale peer's space: n=%d err=%v", n, err)
	}
	if c.IsCachedPosition(0) {
		t.Fatal("expected region1's oldest bytes to have been reclaimed once stale")
	}
}

func TestRaceCircularCache_WriteRead(t *testing.T) {
	c := newTestCircularCache(t, 256, 256, clock.NewFake(0))

	const total = 1 << 14
	data := seqBytes(total)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		off := 0
		for off < total {
			n, err := c.WriteToCache(data[off:min(off+333, total)])
			if err != nil {
				t.Errorf("WriteToCache: %v", err)
				return
			}
			if n == 0 {
				time.Sleep(time.Millisecond)
				continue
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
