// Package redis holds the Redis-backed pieces of the application: the
// leaderboard cache, the notification publisher and the sliding-window
// rate limiter used by the API.
//
// Redis is optional. Every component here degrades to the behaviour the
// application has without Redis: the cache loads from Postgres, a failed
// publish is logged by the caller, and the rate limiter fails open.
package redis
