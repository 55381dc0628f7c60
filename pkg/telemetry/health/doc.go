// Package health provides liveness and readiness probes.
//
// # Endpoints
//
//   - /health: liveness, always 200 while the process serves
//   - /ready: readiness, 503 while any registered check fails
//   - /version: build information
//
// # Usage
//
//	checker := health.New(2 * time.Second)
//	svc.RegisterHealthChecks(checker)
//
//	mux := http.NewServeMux()
//	health.Mount(mux, checker, version, commit, buildTime)
//
// Readiness runs all checks concurrently, each bounded by the checker's
// timeout. A check that does not return in time is reported unhealthy with
// ErrCheckTimeout's message.
package health
