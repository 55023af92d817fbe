// Package health provides composable probes and the HTTP handlers that expose
// them as liveness and readiness endpoints.
//
// Probes combine with [All] and can be labelled with [Named] and bounded with
// [Timeout]. [ShutdownGate] fails readiness while the process drains so load
// balancers stop routing to it before the listeners close.
package health
