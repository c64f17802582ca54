/*
Package sink implements DepotGate's outbound transports.

A Sink transfers a frozen set of artifact pointers plus the shipment
manifest to an external destination. The destination URI's scheme selects
the sink through a Registry built at startup:

  - fs://<relative-subpath>: per-shipment directory under a sink base,
    artifacts written by id with a mime-derived extension, manifest.json
    alongside. Absolute destinations are rejected and "." / ".." segments
    are dropped before anything is written; the resolved directory must stay
    under the sink base.
  - http:// and https://: a single multipart POST, manifest document first,
    one part per artifact, streamed through the content getter.

Sinks do not retry and do not mutate state; partial failure handling is the
shipping service's concern.
*/
package sink
