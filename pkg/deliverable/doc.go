/*
Package deliverable manages outbound contracts and closure.

A contract names what must exist before a bundle may leave: specific
artifact ids, artifact roles (satisfied by at least one live carrier), and
free-form requirement flags marked complete out-of-band via
MarkRequirement. Closure evaluates the contract against the task's live
pointer set only — purged artifacts never count — and reports exactly what
is missing. Closure itself never mutates anything; the shipping service
couples it to the state machine.
*/
package deliverable
