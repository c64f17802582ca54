/*
Package types defines the DepotGate data model shared across all components.

The model has four durable record kinds:

  - ArtifactPointer: the public identity of a staged byte payload. The bytes
    live in the blob store; the pointer carries location, size, hash, role,
    and soft-delete state.
  - Deliverable: a declared outbound contract — which artifact ids, roles,
    and out-of-band requirements must be satisfied before shipping, and the
    destination to ship to.
  - ShipmentManifest: the frozen, by-value record of one successful shipment.
  - Receipt: an append-only causal event record (staged, shipped, rejected,
    purged).

A task is the (tenant_id, root_task_id) namespace; every operation is scoped
to one task. Deliverable status transitions are monotonic: declared → shipped
or declared → rejected, both terminal.
*/
package types
