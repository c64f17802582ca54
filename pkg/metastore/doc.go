/*
Package metastore provides BoltDB-backed persistence for DepotGate's
metadata: artifact pointers, deliverable contracts, and shipment manifests.

Rows are JSON-encoded into one bucket per record kind, keyed by
tenant/id. Reads run in db.View transactions, writes in db.Update; BoltDB
serializes writers and rolls back on any returned error, which is what
gives the shipping commit its all-or-nothing property:

	CommitShipment = CAS(deliverable: declared→shipped) + insert(manifest)

inside a single transaction. Deliverable status changes are always
compare-and-swap, never blind writes — a concurrent ship loses the race
instead of double-shipping.

Pointer soft deletion (MarkPurged) stamps purged_at and optionally
purge_after; live queries filter purged rows out.
*/
package metastore
