/*
Package shipping couples closure verification to the deliverable state
machine and the outbound sinks.

The state machine is monotonic: declared → shipped or declared → rejected,
both terminal, enforced by compare-and-swap on the deliverable row. The
ship algorithm is:

 1. load the deliverable, assert declared
 2. compute closure; unsatisfied → CAS to rejected, emit
    shipment_rejected, fail ClosureNotSatisfied
 3. freeze the matched pointer snapshot
 4. resolve the sink by destination scheme
 5. sink.Ship with lazy content retrieval
 6. one transaction: CAS declared→shipped + insert manifest
 7. emit shipment_complete

Failure ordering matters: before step 6 nothing has changed and nothing is
emitted (safe retry); a step-6 failure after the sink wrote is surfaced as
ManifestPersistFailed (at-least-once — the bytes are already out); a step-7
receipt failure does not revert the committed shipment.

Purge policies: immediate marks pointers purged and deletes bytes
(byte-delete failures leave janitor-recoverable orphans), retain_24h and
retain_7d only stamp purge_after for an external janitor, manual records
intent. Every invocation appends exactly one purged receipt.
*/
package shipping
