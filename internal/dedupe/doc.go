// Package dedupe remembers recently delivered event keys so that events a
// chat platform redelivers (retries after a slow acknowledgement, sync
// replays after a reconnect) are handled only once.
//
//	cache := dedupe.New(5*time.Minute, 100_000, 0)
//	defer cache.Close()
//
//	if cache.Observe(dedupe.Key(channel, ts)) {
//		return // already handled
//	}
package dedupe
