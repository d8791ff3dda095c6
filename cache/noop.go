package cache

import "time"

// noop is the zero-cost Cache used when caching is disabled — the
// "swap the collaborator" pattern: callers always go through the Cache
// interface, so nothing downstream needs an `if enabled` check.
type noop struct{}

// Noop returns a Cache that never stores anything; every Get misses.
func Noop() Cache { return noop{} }

func (noop) Get(key string) ([]byte, bool)            { return nil, false }
func (noop) Set(key string, value []byte, ttl time.Duration) {}
func (noop) Len() int                                 { return 0 }
