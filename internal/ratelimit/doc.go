// Package ratelimit enforces per-address request ceilings such as
// "2 requests per 3 seconds".
//
// Ceilings are written as rate expressions ("2/3seconds", "10 per minute",
// "100/hour;1000/day") and every expression must pass for a request to go
// through. Two strategies are available:
//
//   - fixed window (default): the window opens on a client's first request and
//     resets Period later. Hits are counted in memory ([MemoryStore]) or in
//     Redis ([RedisStore]) when several instances must share the budget.
//   - token bucket ([BucketStore]): Count tokens refilled at Count/Period,
//     built on golang.org/x/time/rate. In memory only.
//
// Rejected requests get 429 with a Retry-After header and a JSON detail naming
// the exceeded rate. Store failures let the request through and are reported
// through OnStoreError.
package ratelimit
