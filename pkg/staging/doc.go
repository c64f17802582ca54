/*
Package staging is the ingest path: producers deposit opaque payloads under
a task namespace and get back an artifact pointer.

Ordering within one Stage call is fixed: bytes first, then the pointer row,
then the artifact_staged receipt. A pointer-insert failure triggers
best-effort deletion of the just-written bytes. A receipt failure after the
pointer committed does NOT revert the pointer — the artifact stays live and
the call reports the lost receipt; the asymmetry is deliberate (a live
artifact without a receipt is recoverable, a receipt for a missing artifact
is a lie).
*/
package staging
