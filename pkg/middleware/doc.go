// Package middleware holds HTTP middleware for the ops surface.
//
// RateLimit guards the endpoints that trigger recomputes. RateLimiter keeps
// token buckets in process; DistributedRateLimiter shares a fixed window
// through Redis across replicas:
//
//	limiter := middleware.NewDistributedRateLimiter(client, middleware.DefaultRateLimitConfig(), "internhub:ops")
//	router.Use(middleware.RateLimit(limiter, middleware.ClientIP, logger))
package middleware
