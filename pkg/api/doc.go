/*
Package api is the HTTP/JSON binding of the DepotGate verbs.

The server is a mechanical wrapper over the core services — staging,
deliverable management, shipping — scoped to the configured tenant. Errors
cross the boundary as {"error": {"kind", "detail"}} with a stable kind and
an HTTP status derived from it; stack traces never leave the process. A
middleware records per-verb request counts and latency in the metrics
package. /health and /metrics ride the same mux.
*/
package api
