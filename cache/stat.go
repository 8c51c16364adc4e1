package cache

import (
	"log"
	"sync/atomic"
)

// Debug levels for stat.debugLvl.
const (
	DebugOff  = 0 // errors/warnings only
	DebugLow  = 1 // rare events: timeouts, seek failures, stale-region reclaims, resets
	DebugHigh = 2 // also short reads/writes, would-block reads, region displacement
)

// stat collects best-effort, non-blocking statistics for one strategy
// instance. It is never on the control-flow path: nothing in this package
// branches on a counter's value.
type stat struct {
	debugLvl    int
	packageName string

	hits            uint64
	shortWrites     uint64
	shortReads      uint64
	wouldBlocks     uint64
	timeouts        uint64
	seekErrors      uint64
	regionDisplaced uint64
	staleReclaims   uint64
	resets          uint64
}

func (s *stat) Snapshot() map[string]uint64 {
	m := map[string]uint64{
		"hits":            atomic.LoadUint64(&s.hits),
		"shortWrites":     atomic.LoadUint64(&s.shortWrites),
		"shortReads":      atomic.LoadUint64(&s.shortReads),
		"wouldBlocks":     atomic.LoadUint64(&s.wouldBlocks),
		"timeouts":        atomic.LoadUint64(&s.timeouts),
		"seekErrors":      atomic.LoadUint64(&s.seekErrors),
		"regionDisplaced": atomic.LoadUint64(&s.regionDisplaced),
		"staleReclaims":   atomic.LoadUint64(&s.staleReclaims),
		"resets":          atomic.LoadUint64(&s.resets),
	}
	for k, v := range m {
		if v == 0 {
			delete(m, k)
		}
	}
	return m
}

func (s *stat) hit() {
	atomic.AddUint64(&s.hits, 1)
}

func (s *stat) shortWrite(requested, got int) {
	atomic.AddUint64(&s.shortWrites, 1)
	if s.debugLvl >= DebugHigh {
		log.Printf("DEBUG: %s: short write requested=%d got=%d", s.packageName, requested, got)
	}
}

func (s *stat) shortRead(requested, got int) {
	atomic.AddUint64(&s.shortReads, 1)
	if s.debugLvl >= DebugHigh {
		log.Printf("DEBUG: %s: short read requested=%d got=%d", s.packageName, requested, got)
	}
}

func (s *stat) wouldBlock() {
	atomic.AddUint64(&s.wouldBlocks, 1)
	if s.debugLvl >= DebugHigh {
		log.Printf("DEBUG: %s: would block", s.packageName)
	}
}

func (s *stat) timeout(waited int) {
	atomic.AddUint64(&s.timeouts, 1)
	if s.debugLvl >= DebugLow {
		log.Printf("DEBUG: %s: wait timed out after %dms", s.packageName, waited)
	}
}

func (s *stat) seekError(target int64) {
	atomic.AddUint64(&s.seekErrors, 1)
	if s.debugLvl >= DebugLow {
		log.Printf("DEBUG: %s: seek to %d failed, not in cached region", s.packageName, target)
	}
}

func (s *stat) regionDisplace(bytesDropped int64) {
	atomic.AddUint64(&s.regionDisplaced, 1)
	if s.debugLvl >= DebugHigh {
		log.Printf("DEBUG: %s: displaced %d bytes from inactive region", s.packageName, bytesDropped)
	}
}

func (s *stat) staleReclaim(region int) {
	atomic.AddUint64(&s.staleReclaims, 1)
	if s.debugLvl >= DebugLow {
		log.Printf("DEBUG: %s: reclaimed stale region %d", s.packageName, region)
	}
}

func (s *stat) reset(filePos int64, discarded bool) {
	atomic.AddUint64(&s.resets, 1)
	if s.debugLvl >= DebugLow {
		log.Printf("DEBUG: %s: reset to %d discarded=%v", s.packageName, filePos, discarded)
	}
}

func (s *stat) warn(format string, args ...interface{}) {
	log.Printf("WARN: %s: "+format, append([]interface{}{s.packageName}, args...)...)
}

func (s *stat) errorf(format string, args ...interface{}) {
	log.Printf("ERROR: %s: "+format, append([]interface{}{s.packageName}, args...)...)
}
