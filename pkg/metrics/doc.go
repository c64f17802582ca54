/*
Package metrics exposes DepotGate's prometheus collectors.

Collectors are package-level and registered once in init: staged artifact
and byte counters, shipment outcome counters and latency, purge counters,
receipt-append counters (including post-commit write failures), and API
request counters/latency. Handler() serves the /metrics endpoint.
*/
package metrics
