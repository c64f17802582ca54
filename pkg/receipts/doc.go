/*
Package receipts is DepotGate's append-only durable event log.

Receipts record every externally-visible state change (artifact_staged,
shipment_complete, shipment_rejected, purged) with an optional causal
back-link to the receipt that caused them. The store exposes exactly two
operations — Append and ListByTask — and no mutation path: once a receipt
id is present its bytes never change.

The log lives in its own BoltDB file so the audit trail can be retained,
backed up, or shipped independently of the metadata database.
*/
package receipts
