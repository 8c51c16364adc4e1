package cache

// Default tuning parameters shared by the cache strategies.
const (
	// DefaultFrontSize is the default forward buffer for CircularCache.
	DefaultFrontSize = 4 * 1024 * 1024 // 4 MiB

	// DefaultBackSize is the default guaranteed back buffer for CircularCache.
	DefaultBackSize = 4 * 1024 * 1024 // 4 MiB

	// CircularMaxAgeMillis is the staleness threshold for the other region
	// in CircularCache's inter-region displacement rule.
	CircularMaxAgeMillis = 12000

	// DoubleCacheAgeMillis is the staleness threshold for the peer in
	// DoubleCache's switching policy.
	DoubleCacheAgeMillis = 15000

	// SeekWaitWindow is the number of bytes beyond a cached region's end
	// that trigger a short wait on Seek instead of an immediate error.
	SeekWaitWindow = 100000

	// SeekWaitMillis is the duration of that short wait.
	SeekWaitMillis = 5000

	// SimpleFileCacheMaxSeekGap is the maximum forward seek distance (in
	// excess of what SeekWaitMillis of waiting could plausibly deliver)
	// SimpleFileCache will attempt before failing outright.
	SimpleFileCacheMaxSeekGap = 500000

	// maxSpoolFileIndex bounds the spool filename probe.
	maxSpoolFileIndex = 999
)
