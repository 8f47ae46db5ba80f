// Package redis provides a Redis-backed step store.
//
// Each record is a JSON string under "<prefix>step:<id>". The records of a
// run are indexed by a sorted set "<prefix>run:<run_id>:steps" scored by
// sequence number, so List returns them in order with one ZRANGE and one
// MGET. A TTL, when set, applies to both.
//
//	s := redis.NewRedisStepStore(redis.RedisOptions{
//		Addr:   "localhost:6379",
//		Prefix: "agentrun:",
//		TTL:    24 * time.Hour,
//	})
//
// The backend registers the "redis" URL scheme, parsed with redis.ParseURL.
package redis
