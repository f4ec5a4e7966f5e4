// Package health serves liveness and readiness probes.
//
//	r.Get("/health/live", health.LivenessHandler())
//	r.Get("/health/ready", health.ReadinessHandler(health.Checks{
//		"postgres": db.Healthcheck(pool),
//		"jobs":     job.Healthcheck(manager),
//		"redis":    redis.Healthcheck(client),
//		"claims":   health.ProcessingBacklog(store, 1000),
//	}, health.WithOptional("redis", "claims"), health.WithLogger(log)))
//
// Checks run in parallel under a shared timeout (5s by default). A failing
// required check answers 503; a failing optional check reports "degraded"
// with 200 so the instance keeps receiving traffic.
//
// Responses are plain text unless the client sends Accept: application/json
// or ?format=json:
//
//	{
//	  "status": "degraded",
//	  "checks": {
//	    "postgres": {"status": "healthy", "duration_ms": 2},
//	    "redis": {"status": "unhealthy", "error": "connection refused", "duration_ms": 1}
//	  }
//	}
package health
