// Command mediacache-demo drives one of the cache strategies against a
// local file and reports throughput, demonstrating the producer/consumer
// plumbing without any real network source.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mediacache/mediacache/cache"
	"github.com/mediacache/mediacache/clock"
	"github.com/mediacache/mediacache/consumer"
	"github.com/mediacache/mediacache/platform"
	"github.com/mediacache/mediacache/producer"
)

func main() {
	strategy := flag.String("strategy", "circular", "cache strategy: simple, circular, or double")
	input := flag.String("input", "", "path to the file to stream; a synthetic 8MiB source is used if empty")
	seekTo := flag.Int64("seek", -1, "if >= 0, seek to this byte offset partway through the run")
	debug := flag.Int("debug", cache.DebugLow, "debug verbosity: 0=off, 1=low, 2=high")
	flag.Parse()

	c, err := buildStrategy(*strategy, *debug)
	if err != nil {
		log.Fatalf("build strategy: %v", err)
	}
	if err := c.Open(); err != nil {
		log.Fatalf("Open: %v", err)
	}
	defer c.Close()

	src, closeSrc, err := openInput(*input)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer closeSrc()

	p := producer.NewPump(producer.NewReaderSource(src), c)
	pumpErr := make(chan error, 1)
	go func() { pumpErr <- p.Run() }()

	if *seekTo >= 0 {
		time.Sleep(50 * time.Millisecond)
		if pos, err := c.Seek(*seekTo); err != nil {
			log.Printf("seek to %d failed: %v", *seekTo, err)
		} else {
			log.Printf("seeked to %d", pos)
		}
	}

	start := time.Now()
	chunk := make([]byte, 64*1024)
	n, err := consumer.ReadLoop(c, io.Discard, chunk, 5000)
	if err != nil {
		log.Fatalf("ReadLoop: %v", err)
	}
	elapsed := time.Since(start)

	if err := <-pumpErr; err != nil {
		log.Fatalf("producer: %v", err)
	}

	fmt.Printf("strategy=%s bytes=%d elapsed=%s stat=%v\n", *strategy, n, elapsed, c.(interface{ Stat() map[string]uint64 }).Stat())
}

func buildStrategy(name string, debugLvl int) (cache.Strategy, error) {
	switch name {
	case "simple":
		return cache.NewSimpleFileCache(platform.OSFileSystem{}, "", debugLvl), nil
	case "circular":
		return cache.NewCircularCache(cache.DefaultFrontSize, cache.DefaultBackSize, clock.Real{}, debugLvl), nil
	case "double":
		a := cache.NewCircularCache(cache.DefaultFrontSize, cache.DefaultBackSize, clock.Real{}, debugLvl)
		b := cache.NewSimpleFileCache(platform.OSFileSystem{}, "", debugLvl)
		return cache.NewDoubleCache(a, b, clock.Real{}, debugLvl), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want simple, circular, or double)", name)
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" {
		return io.LimitReader(syntheticSource{}, 8*1024*1024), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// syntheticSource is an infinite deterministic byte stream, used when no
// -input file is given.
type syntheticSource struct{}

func (syntheticSource) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(i)
	}
	return len(p), nil
}
