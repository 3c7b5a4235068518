// Package redis implements store.Store on Redis with go-redis.
//
// Every mutating operation is a single Lua script, so it runs atomically on
// the server. Records are hashes; per queue and job type a sorted set holds
// scheduled ids and another holds due ids ranked by priority, then enqueue
// time, then id. All keys share one hash-tagged prefix and therefore one
// cluster slot.
//
// Timestamps are stored as zero-padded nanosecond strings, so lease
// fencing compares exact values.
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Migrate(ctx); err != nil { ... }
package redis
